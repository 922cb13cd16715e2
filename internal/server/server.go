package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"agentgate/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// shutdownGrace bounds how long in-flight requests may finish after the
// serve context is cancelled.
const shutdownGrace = 10 * time.Second

// Server hosts the proxy's HTTP surface: the MCP endpoint, a liveness
// endpoint, and the metrics endpoint. The MCP and metrics handlers are
// swappable at runtime so a config reload can replace the whole proxy stack
// without dropping the listener.
type Server struct {
	addr string

	mu      sync.RWMutex
	mcp     http.Handler
	metrics http.Handler

	listenerMu sync.Mutex
	boundAddr  string
}

// New creates a Server listening on addr once Run is called. Both handlers
// may be nil until Swap is called; requests arriving before then are
// answered with 503.
func New(addr string) *Server {
	return &Server{addr: addr}
}

// Swap atomically replaces the MCP and metrics handlers. Requests already
// dispatched to the old handlers finish on them.
func (s *Server) Swap(mcp, metrics http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mcp = mcp
	s.metrics = metrics
}

// BoundAddr returns the address the listener actually bound, which differs
// from the configured one when port 0 was requested. Empty until Run has
// started listening.
func (s *Server) BoundAddr() string {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	return s.boundAddr
}

// Handler returns the routing handler. Exposed for tests; Run serves it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		s.dispatch(w, r, func() http.Handler { return s.mcp })
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.dispatch(w, r, func() http.Handler { return s.metrics })
	})
	return mux
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, pick func() http.Handler) {
	s.mu.RLock()
	h := pick()
	s.mu.RUnlock()
	if h == nil {
		http.Error(w, "server is starting", http.StatusServiceUnavailable)
		return
	}
	h.ServeHTTP(w, r)
}

// Run listens and serves until ctx is cancelled, then shuts down gracefully.
// It returns nil on a clean shutdown and the listen or serve error
// otherwise.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.listenerMu.Lock()
	s.boundAddr = listener.Addr().String()
	s.listenerMu.Unlock()

	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("Server", "Listening on %s", s.BoundAddr())

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logging.Info("Server", "Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
