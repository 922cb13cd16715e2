package server

import (
	"path/filepath"
	"sync"
	"time"

	"agentgate/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is how long the watcher waits after the last file
// event before firing OnChange, so an editor's write-rename-chmod burst
// triggers one reload instead of three.
const DefaultDebounceInterval = 500 * time.Millisecond

// ConfigWatcher watches one configuration file and invokes a callback when
// it changes. The parent directory is watched rather than the file itself,
// because most editors replace files by rename, which would otherwise
// silently detach the watch.
type ConfigWatcher struct {
	path     string
	onChange func()
	debounce time.Duration

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	stopOnce  sync.Once

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewConfigWatcher creates a watcher for the given file. The callback runs
// on the watcher's goroutine; it must not block for long.
func NewConfigWatcher(path string, onChange func()) (*ConfigWatcher, error) {
	return newConfigWatcher(path, DefaultDebounceInterval, onChange)
}

func newConfigWatcher(path string, debounce time.Duration, onChange func()) (*ConfigWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &ConfigWatcher{
		path:      path,
		onChange:  onChange,
		debounce:  debounce,
		fsWatcher: fsWatcher,
		stopCh:    make(chan struct{}),
	}
	go w.loop()

	logging.Debug("ConfigWatcher", "Watching %s", path)
	return w, nil
}

// Stop ends the watch and releases the underlying notifier. Safe to call
// more than once.
func (w *ConfigWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.fsWatcher.Close()
	})
}

func (w *ConfigWatcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			logging.Debug("ConfigWatcher", "Change detected: %s (%s)", event.Name, event.Op)
			w.scheduleReload()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("ConfigWatcher", "Watch error: %v", err)
		}
	}
}

func (w *ConfigWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *ConfigWatcher) scheduleReload() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.stopCh:
		default:
			w.onChange()
		}
	})
}
