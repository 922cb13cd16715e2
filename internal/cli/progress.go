package cli

import (
	"fmt"
	"time"

	"github.com/briandowns/spinner"
)

// Progress shows a spinner while a long-running operation is in flight.
// In quiet mode every method is a no-op, so callers never have to branch.
//
// Provisioning waits are the main user: a gateway can take minutes to
// settle, and a silent terminal looks like a hang.
type Progress struct {
	spinner *spinner.Spinner
	quiet   bool
}

// NewProgress creates a progress indicator. When quiet is true nothing is
// ever printed.
func NewProgress(quiet bool) *Progress {
	if quiet {
		return &Progress{quiet: true}
	}
	return &Progress{
		spinner: spinner.New(spinner.CharSets[14], 100*time.Millisecond),
	}
}

// Start begins the spinner with the given message.
func (p *Progress) Start(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.spinner.Suffix = " " + fmt.Sprintf(format, args...)
	p.spinner.Start()
}

// Update changes the message without restarting the spinner.
func (p *Progress) Update(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.spinner.Suffix = " " + fmt.Sprintf(format, args...)
}

// Stop halts the spinner and clears its line.
func (p *Progress) Stop() {
	if p.quiet {
		return
	}
	p.spinner.Stop()
}

// Success stops the spinner and prints a final confirmation line.
func (p *Progress) Success(format string, args ...interface{}) {
	p.Stop()
	if p.quiet {
		return
	}
	fmt.Println(FormatSuccess(fmt.Sprintf(format, args...)))
}

// Fail stops the spinner and prints a final warning line.
func (p *Progress) Fail(format string, args ...interface{}) {
	p.Stop()
	if p.quiet {
		return
	}
	fmt.Println(FormatWarning(fmt.Sprintf(format, args...)))
}
