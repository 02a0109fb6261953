// Copyright 2025 Author(s) of MCP Any
// SPDX-License-Identifier: Apache-2.0

// Package app wires the trace writer, the controller and the proxy into an
// HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"github.com/tracerequests/core/pkg/config"
	"github.com/tracerequests/core/pkg/consts"
	"github.com/tracerequests/core/pkg/health"
	"github.com/tracerequests/core/pkg/logging"
	"github.com/tracerequests/core/pkg/metrics"
	"github.com/tracerequests/core/pkg/middleware"
	"github.com/tracerequests/core/pkg/proxy"
	"github.com/tracerequests/core/pkg/trace"
	"github.com/tracerequests/core/pkg/tracelog"
)

// DefaultShutdownTimeout is used when RunOptions.ShutdownTimeout is zero.
const DefaultShutdownTimeout = 5 * time.Second

// RunOptions configures a single run of the application.
type RunOptions struct {
	Ctx             context.Context
	Fs              afero.Fs
	ListenAddress   string
	Upstream        string
	BaseName        string
	MaxFileLines    int
	MaxFolderFiles  int
	SettingsBackend config.Backend
	SettingsPath    string
	Metrics         bool
	ShutdownTimeout time.Duration
	// RateLimit is the per-client requests per second; 0 disables limiting.
	RateLimit       float64
	RateBurst       int
}

// Runner defines the interface for running the application. It abstracts the
// application's entry point so the CLI can be tested with a mock.
type Runner interface {
	// Run starts the application and blocks until opts.Ctx is canceled or a
	// server fails.
	Run(opts RunOptions) error
}

// Application is the tracing proxy.
type Application struct {
	mu         sync.Mutex
	store      config.Store
	controller *trace.Controller
	addr       string
	startupCh  chan struct{}
}

// NewApplication creates an Application ready to Run.
func NewApplication() *Application {
	return &Application{startupCh: make(chan struct{})}
}

// Run starts the tracing proxy.
//
// Parameters:
//   - opts: The run configuration. Upstream is required.
//
// Returns an error if a component cannot be created or the server fails;
// nil after a graceful shutdown.
func (a *Application) Run(opts RunOptions) error {
	log := logging.GetLogger()
	ctx := opts.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	fs := setup(opts.Fs)

	if opts.Upstream == "" {
		return errors.New("an upstream URL is required")
	}
	upstream, err := proxy.NewReverseProxy(opts.Upstream)
	if err != nil {
		return err
	}

	if opts.Metrics {
		if err := metrics.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	store, err := config.NewStore(ctx, fs, opts.SettingsBackend, opts.SettingsPath)
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("Failed to close settings store", "error", err)
		}
	}()

	writer := tracelog.NewWriter(fs,
		tracelog.WithMaxFileLines(opts.MaxFileLines),
		tracelog.WithMaxFolderFiles(opts.MaxFolderFiles),
	)
	defer func() { _ = writer.Close() }()

	controller := trace.NewController(ctx, writer, store, trace.WithBaseName(opts.BaseName))
	log.Info("Tracing requests", "path", controller.TraceFilesPath(), "upstream", opts.Upstream)

	a.mu.Lock()
	a.store, a.controller = store, controller
	a.mu.Unlock()

	if fileStore, ok := store.(*config.FileStore); ok {
		watcher, err := config.NewWatcher(config.DefaultDebounce)
		if err != nil {
			return err
		}
		defer watcher.Close()
		if err := watcher.Watch([]string{fileStore.Path()}, func() {
			if err := a.ReloadSettings(ctx); err != nil {
				log.Error("Failed to reload settings", "error", err)
			}
		}); err != nil {
			log.Warn("Settings file changes will not be picked up", "path", fileStore.Path(), "error", err)
		}
	}

	lis, err := net.Listen("tcp", opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", opts.ListenAddress, err)
	}

	handler := newRouter(opts, writer, controller, upstream)
	return a.serve(ctx, lis, handler, opts.ShutdownTimeout)
}

// ReloadSettings re-reads the settings store (file backend) and re-resolves
// the trace path.
func (a *Application) ReloadSettings(ctx context.Context) error {
	a.mu.Lock()
	store, controller := a.store, a.controller
	a.mu.Unlock()
	if controller == nil {
		return errors.New("application is not running")
	}

	if fileStore, ok := store.(*config.FileStore); ok {
		if err := fileStore.Reload(); err != nil {
			return err
		}
	}
	path := controller.Reset(ctx)
	logging.GetLogger().Info("Settings reloaded", "path", path)
	return nil
}

// WaitForStartup blocks until the server is listening or ctx is done.
func (a *Application) WaitForStartup(ctx context.Context) error {
	select {
	case <-a.startupCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the address the server listens on, once started.
func (a *Application) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

func (a *Application) serve(ctx context.Context, lis net.Listener, handler http.Handler, shutdownTimeout time.Duration) error {
	errChan := make(chan error, 1)
	var wg sync.WaitGroup

	a.mu.Lock()
	a.addr = lis.Addr().String()
	a.mu.Unlock()

	startHTTPServer(ctx, &wg, errChan, "Trace proxy", lis, handler, shutdownTimeout)
	close(a.startupCh)

	select {
	case err := <-errChan:
		wg.Wait()
		return fmt.Errorf("failed to start a server: %w", err)
	case <-ctx.Done():
		logging.GetLogger().Info("Received shutdown signal, shutting down gracefully...")
	}

	wg.Wait()
	logging.GetLogger().Info("All servers have shut down.")
	return nil
}

// setup initializes the filesystem for the server. It ensures that a valid
// afero.Fs is available, defaulting to the OS filesystem if nil is provided.
func setup(fs afero.Fs) afero.Fs {
	if fs == nil {
		logging.GetLogger().Warn("run called with nil afero.Fs, defaulting to OS filesystem.")
		fs = afero.NewOsFs()
	}
	return fs
}

// newRouter serves /metrics and /healthz locally and hands every other path
// to the traced proxy. Every route runs behind the request ID and access log
// middleware, the optional rate limiter and panic recovery.
func newRouter(opts RunOptions, writer *tracelog.Writer, controller *trace.Controller, upstream http.Handler) http.Handler {
	r := mux.NewRouter()
	if opts.Metrics {
		r.Handle(consts.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	}
	r.Handle(consts.HealthPath, health.NewHandler(health.NewChecker(writer, opts.Upstream))).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(proxy.NewHandler(controller, upstream))

	mws := []middleware.Middleware{middleware.RequestIDMiddleware, middleware.LoggingMiddleware}
	if opts.RateLimit > 0 {
		mws = append(mws, middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst).Handler)
	}
	mws = append(mws, middleware.RecoveryMiddleware)
	return middleware.Chain(r, mws...)
}

// startHTTPServer starts an HTTP server in a new goroutine. It handles graceful
// shutdown when the context is canceled.
func startHTTPServer(ctx context.Context, wg *sync.WaitGroup, errChan chan<- error, name string, lis net.Listener, handler http.Handler, shutdownTimeout time.Duration) {
	if shutdownTimeout <= 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	serverCtx, cancel := context.WithCancel(ctx)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		serverLog := logging.GetLogger().With("server", name, "addr", lis.Addr().String())
		server := &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			serverLog.Info("HTTP server listening")
			if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("[%s] server failed: %w", name, err)
				cancel()
			}
		}()

		<-serverCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		serverLog.Info("Attempting to gracefully shut down server...")
		if err := server.Shutdown(shutdownCtx); err != nil {
			serverLog.Error("Shutdown error", "error", err)
		}
		serverLog.Info("Server shut down.")
	}()
}
