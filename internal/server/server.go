package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/HMasataka/clientserve/internal/config"
	"github.com/HMasataka/clientserve/internal/livereload"
	"github.com/HMasataka/clientserve/pkg/static"
	"github.com/HMasataka/logging"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/samber/lo"
)

const (
	HealthPath     = "/health"
	LiveReloadPath = "/_livereload"
	ScriptPath     = "/_livereload.js"
)

var ErrAddrInUse = errors.New("address already in use")

type Server struct {
	config  config.Config
	static  *static.Handler
	hub     *livereload.Hub
	watcher *livereload.Watcher
	scanner *livereload.Scanner
	handler http.Handler
	http    *http.Server

	mu sync.Mutex
	ln net.Listener
}

// New wires the static mounts, live reload and middleware from cfg. Paths in
// cfg must already be resolved.
func New(cfg config.Config) (*Server, error) {
	mounts := append([]static.Mount{{Prefix: "/", Dir: cfg.Static.Root}}, lo.Map(cfg.Static.Mounts, func(m config.MountConfig, _ int) static.Mount {
		return static.Mount{Prefix: m.Prefix, Dir: m.Dir}
	})...)

	files, err := static.NewHandler(mounts, static.Options{Index: cfg.Static.Index})
	if err != nil {
		return nil, err
	}

	s := &Server{
		config: cfg,
		static: files,
	}

	router := mux.NewRouter()
	router.HandleFunc(HealthPath, health).Methods(http.MethodGet, http.MethodHead)

	if s.LiveReloadEnabled() {
		s.hub = livereload.NewHub(livereload.DefaultHubOptions())
		s.scanner = livereload.NewScanner(files.Mounts(), len(mounts))
		s.watcher = livereload.NewWatcher(s.scanner, s.hub, livereload.WatcherOptions{
			Interval: time.Duration(cfg.LiveReload.Interval),
			Debounce: time.Duration(cfg.LiveReload.Debounce),
		})

		router.Handle(LiveReloadPath, s.hub).Methods(http.MethodGet)
		router.Handle(ScriptPath, livereload.ScriptHandler()).Methods(http.MethodGet, http.MethodHead)
	}

	router.PathPrefix("/").Handler(files)

	s.handler = alice.New(
		handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{}), handlers.PrintRecoveryStack(cfg.Server.Debug)),
		s.accessLog,
	).Then(router)

	s.http = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) LiveReloadEnabled() bool {
	return s.config.Server.Debug && s.config.LiveReload.Enabled
}

// Listen binds the configured address. A second instance on the same port
// fails here with ErrAddrInUse.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.config.Server.Addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen %s: %w: %w", s.config.Server.Addr, ErrAddrInUse, err)
		}
		return nil, fmt.Errorf("listen %s: %w", s.config.Server.Addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	return ln, nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.config.Server.Addr
}

// Serve runs until ctx is done and then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	if s.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.watcher.Run(watchCtx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	slog.Info("server started", slog.String("addr", ln.Addr().String()), slog.Bool("debug", s.config.Server.Debug), slog.Bool("livereload", s.LiveReloadEnabled()))

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		slog.Info("shutting down server...")
	}

	stopWatch()
	wg.Wait()

	return errors.Join(serveErr, s.shutdown())
}

func (s *Server) shutdown() error {
	timeout := time.Duration(s.config.Server.ShutdownTimeout)
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error

	// websocket clients are hijacked, so Shutdown does not wait for them.
	if s.hub != nil {
		errs = append(errs, s.hub.Close())
	}
	if err := s.http.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errs = append(errs, err)
	}
	if s.scanner != nil {
		s.scanner.Close()
	}
	errs = append(errs, s.static.Close())

	return errors.Join(errs...)
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return errors.Join(err, s.shutdown())
	}
	return s.Serve(ctx, ln)
}

func health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	level := slog.LevelInfo
	if s.config.Server.Debug {
		level = slog.LevelDebug
	}

	return handlers.CustomLoggingHandler(io.Discard, next, func(_ io.Writer, p handlers.LogFormatterParams) {
		ctx := p.Request.Context()
		attrs := []slog.Attr{
			slog.String("method", p.Request.Method),
			slog.String("path", p.URL.Path),
			slog.Int("status", p.StatusCode),
			slog.Int("size", p.Size),
			slog.String("remote", p.Request.RemoteAddr),
			slog.Duration("elapsed", time.Since(p.TimeStamp)),
		}

		if logging.HasLoggingContext(ctx) {
			slog.LogAttrs(ctx, level, "request", attrs...)
			return
		}
		slog.LogAttrs(context.Background(), level, "request", attrs...)
	})
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...any) {
	slog.Error("panic recovered", slog.String("error", fmt.Sprint(v...)))
}
