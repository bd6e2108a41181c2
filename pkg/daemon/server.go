package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jamesainslie/fopt/pkg/fopt/logging"
)

// Server serves a Service over HTTP on a Unix socket.
type Server struct {
	socketPath string
	srv        *http.Server
	listener   net.Listener

	// streams is the base context of every request; cancelling it ends
	// open event streams so Shutdown does not wait on them.
	streams context.Context
	cancel  context.CancelFunc
}

func logger() *logging.Logger {
	return logging.Get("http")
}

// NewHandler returns the API router for svc. onShutdown runs in its own
// goroutine after POST /api/shutdown has been answered.
func NewHandler(svc *Service, onShutdown func()) http.Handler {
	h := &handlers{svc: svc, shutdown: onShutdown}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.NotFound(notFound)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Get("/folders", h.folders)

		r.Post("/scans", h.startScan)
		r.Get("/scans/{id}", h.getScan)
		r.Delete("/scans/{id}", h.cancelScan)
		r.Get("/events", h.events)

		r.Post("/compact", h.compact)

		r.Get("/catalog", h.catalog)
		r.Post("/catalog/prune", h.pruneCatalog)
		r.Post("/catalog/{name}/open", h.openArchive)
		r.Post("/catalog/{name}/restore", h.restoreArchive)

		r.Get("/history", h.history)
		r.Get("/history/{id}", h.historyEntry)
		r.Post("/history/clean", h.cleanHistory)
		r.Post("/scratch/clean", h.cleanScratch)

		r.Post("/shutdown", h.shutdownDaemon)
	})
	return r
}

// requestLogger logs each request at debug level once it completes.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger().Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// NewServer listens on socketPath, replacing any stale socket file.
func NewServer(svc *Service, socketPath string, onShutdown func()) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "unix", socketPath)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = listener.Close()
		return nil, err
	}

	streams, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath: socketPath,
		listener:   listener,
		streams:    streams,
		cancel:     cancel,
		srv: &http.Server{
			Handler:           NewHandler(svc, onShutdown),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return streams },
		},
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Serve accepts connections until Close. It returns nil after a clean
// shutdown.
func (s *Server) Serve() error {
	logger().Info("server listening", "socket", s.socketPath)
	if err := s.srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close ends event streams, waits for in-flight requests until ctx is done
// and removes the socket file.
func (s *Server) Close(ctx context.Context) error {
	s.cancel()
	err := s.srv.Shutdown(ctx)
	if rmErr := os.Remove(s.socketPath); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}
