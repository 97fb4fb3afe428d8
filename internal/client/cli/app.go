package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/client/api"
	"github.com/dmitrijs2005/conformsync/internal/client/backup"
	"github.com/dmitrijs2005/conformsync/internal/client/cache"
	"github.com/dmitrijs2005/conformsync/internal/client/config"
	"github.com/dmitrijs2005/conformsync/internal/client/connectivity"
	"github.com/dmitrijs2005/conformsync/internal/client/events"
	"github.com/dmitrijs2005/conformsync/internal/client/notify"
	"github.com/dmitrijs2005/conformsync/internal/client/repair"
	"github.com/dmitrijs2005/conformsync/internal/client/storage"
	"github.com/dmitrijs2005/conformsync/internal/client/syncer"
	"github.com/dmitrijs2005/conformsync/internal/client/worker"
	"github.com/dmitrijs2005/conformsync/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App wires every client component for one process.
type App struct {
	config    *config.Config
	log       logging.Logger
	logCloser io.Closer
	out       io.Writer
	reader    *bufio.Reader

	kv       storage.Storage
	watcher  *storage.Watcher
	bus      *events.Bus
	cache    *cache.Store
	api      *api.HTTPClient
	monitor  *connectivity.Monitor
	manager  *syncer.Manager
	worker   *worker.Background
	registry *prometheus.Registry
	notifier notify.Notifier

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewApp(ctx context.Context, c *config.Config, in io.Reader, out io.Writer) (*App, error) {
	log, closer := logging.New(c.LoggingOptions())

	a := &App{
		config:    c,
		log:       log,
		logCloser: closer,
		out:       out,
		reader:    bufio.NewReader(in),
		bus:       events.NewBus(256),
		registry:  prometheus.NewRegistry(),
	}

	if err := a.openStorage(ctx); err != nil {
		_ = closer.Close()
		return nil, err
	}
	a.cache = cache.New(a.kv, a.bus, log)
	if c.UserID != "" {
		if err := a.cache.SetUser(ctx, c.UserID); err != nil {
			a.closeResources()
			return nil, err
		}
	}

	deviceID, err := a.cache.DeviceID(ctx)
	if err != nil {
		a.closeResources()
		return nil, fmt.Errorf("device id: %w", err)
	}

	a.api, err = api.NewHTTPClient(api.Options{
		BaseURL:  c.APIBase,
		Timeout:  c.RequestTimeout,
		DeviceID: deviceID,
		Logger:   log,
	})
	if err != nil {
		a.closeResources()
		return nil, err
	}

	a.monitor = connectivity.NewMonitor(a.api, a.bus, log, c.OnlineCheckInterval)
	a.notifier = notify.Multi{notify.Log{Logger: log}, notify.NewWriter(out)}
	a.registry.MustRegister(collectors.NewGoCollector())

	a.manager = syncer.NewManager(syncer.Deps{
		Cache:    a.cache,
		API:      a.api,
		Online:   a.monitor,
		Bus:      a.bus,
		Notifier: a.notifier,
		Metrics:  syncer.NewMetrics(a.registry),
		Log:      log,
		Policy: syncer.Policy{
			DebounceDelay:   c.DebounceDelay,
			SyncInterval:    c.SyncInterval,
			MinSyncInterval: c.MinSyncInterval,
			RequestTimeout:  c.RequestTimeout,
			MaxAttempts:     c.MaxAttempts,
		},
	})
	a.worker = worker.New(a.manager, a.cache, a.bus, log, worker.Options{Interval: c.WorkerInterval})

	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	switch a.config.Storage {
	case config.StorageMemory:
		a.kv = storage.NewMemory()
	case config.StorageFile:
		fs, err := storage.NewFileStore(a.config.StoragePath)
		if err != nil {
			return err
		}
		a.kv = fs
		if a.config.WatchStorage {
			w, err := storage.NewWatcher(fs, a.log, 100*time.Millisecond)
			if err != nil {
				return err
			}
			a.watcher = w
		}
	default:
		db, err := storage.OpenSQLite(ctx, a.config.StoragePath)
		if err != nil {
			return fmt.Errorf("error initializing database: %w", err)
		}
		a.kv = db
	}
	return nil
}

func (a *App) goRun(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// Start probes the server once, starts the connectivity watcher and loads
// every collection. Load errors are logged: the cache stays usable offline.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	if a.config.Offline {
		a.monitor.SetOnline(false)
		a.log.Info(ctx, "offline mode, changes stay local")
	} else {
		mode := a.monitor.Check(ctx)
		a.log.Debug(ctx, "initial connectivity", "mode", mode)
	}
	// Probes are no-ops while the mode is pinned offline.
	a.goRun(func() { a.monitor.Run(ctx) })

	if a.watcher != nil {
		a.goRun(func() { a.cache.ForwardExternal(ctx, a.watcher.Changes()) })
	}

	if a.cache.UserID() == "" {
		a.log.Warn(ctx, "no user configured, collections stay empty")
		return
	}
	if err := a.manager.Start(ctx); err != nil {
		a.log.Warn(ctx, "initial load incomplete", "error", err)
	}
}

// RunDaemon starts the background worker, the push listener and the
// metrics endpoint, then blocks until ctx is done.
func (a *App) RunDaemon(ctx context.Context) error {
	a.Start(ctx)

	a.worker.RegisterAll()
	a.goRun(func() { a.worker.Run(ctx) })

	trace, untrace := a.bus.Subscribe()
	a.goRun(func() {
		defer untrace()
		a.traceEvents(ctx, trace)
	})

	if a.config.Push && a.cache.UserID() != "" {
		deviceID, err := a.cache.DeviceID(ctx)
		if err != nil {
			return err
		}
		rl, err := notify.NewRemoteListener(a.config.APIBase, a.cache.UserID(), deviceID, a.bus, a.log)
		if err != nil {
			return err
		}
		a.goRun(func() { rl.Run(ctx) })
	}

	if a.config.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              a.config.MetricsAddr,
			Handler:           a.metricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		a.goRun(func() {
			a.log.Info(ctx, "metrics listening", "addr", a.config.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error(ctx, "metrics server failed", "error", err)
			}
		})
		a.goRun(func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	a.log.Info(ctx, "daemon running", "user", a.cache.UserID(), "api", a.config.APIBase)
	<-ctx.Done()
	return nil
}

// traceEvents logs bus traffic by event name.
func (a *App) traceEvents(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			a.log.Debug(ctx, "event", "name", ev.Name(), "table", ev.Table, "user", ev.UserID)
		}
	}
}

func (a *App) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return mux
}

func (a *App) snapshotter(ctx context.Context) (*backup.Snapshotter, error) {
	var blobs backup.BlobStore
	if a.config.S3Bucket != "" {
		s3, err := backup.NewS3Store(ctx, backup.S3Config{
			Bucket:          a.config.S3Bucket,
			Prefix:          a.config.S3Prefix,
			Region:          a.config.S3Region,
			Endpoint:        a.config.S3Endpoint,
			AccessKeyID:     a.config.S3AccessKeyID,
			SecretAccessKey: a.config.S3SecretAccessKey,
			UsePathStyle:    a.config.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		blobs = s3
	} else {
		dir, err := backup.NewDirStore(a.config.BackupDir)
		if err != nil {
			return nil, err
		}
		blobs = dir
	}
	return backup.NewSnapshotter(a.cache, blobs, a.log), nil
}

func (a *App) repairTool(ctx context.Context) (*repair.Tool, error) {
	snap, err := a.snapshotter(ctx)
	if err != nil {
		return nil, err
	}
	return repair.New(repair.Options{
		API:        a.api,
		Cache:      a.cache,
		Fleet:      a.manager,
		Backup:     snap,
		Notifier:   a.notifier,
		Logger:     a.log,
		OnDeviceID: a.api.SetDeviceID,
	}), nil
}

// Close stops background work and releases storage. It is safe to call
// more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		if a.manager != nil {
			a.manager.Close()
		}
		a.wg.Wait()
		a.closeResources()
	})
}

func (a *App) closeResources() {
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	if a.kv != nil {
		_ = a.kv.Close()
	}
	a.bus.Close()
	_ = a.logCloser.Close()
}
