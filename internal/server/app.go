// Package server wires the record store, the push hub and the HTTP
// handlers of the reference server and runs them until a signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/conformsync/internal/logging"
	"github.com/dmitrijs2005/conformsync/internal/server/config"
	"github.com/dmitrijs2005/conformsync/internal/server/handlers"
	"github.com/dmitrijs2005/conformsync/internal/server/hub"
	"github.com/dmitrijs2005/conformsync/internal/server/store"
	"github.com/prometheus/client_golang/prometheus"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	store     store.Repository
	hub       *hub.Hub
	router    *handlers.Router
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, closer := logging.New(c.LoggingOptions())

	var repo store.Repository
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database DSN, records are kept in memory")
		repo = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			_ = closer.Close()
			return nil, fmt.Errorf("db init error: %w", err)
		}
		repo = pg
	}

	h := hub.New(logger)
	router := handlers.NewRouter(handlers.Options{
		Store:    repo,
		Hub:      h,
		BasePath: c.BasePath,
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	})

	return &App{
		config:    c,
		logger:    logger,
		logCloser: closer,
		store:     repo,
		hub:       h,
		router:    router,
	}, nil
}

// Handler exposes the HTTP routes.
func (app *App) Handler() http.Handler {
	return app.router
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{Addr: app.config.HTTPAddr, Handler: app.router}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown failed", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.HTTPAddr, "base_path", app.config.BasePath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "http server failed", "error", err)
		cancelFunc()
	}
}

// Run serves until ctx is done or a termination signal arrives, then
// releases the store and the log file.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "store close failed", "error", err)
	}
	app.logger.Info(ctx, "app stopped")
	_ = app.logCloser.Close()
}
