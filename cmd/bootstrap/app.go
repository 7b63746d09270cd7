// Package bootstrap wires configuration, storage, publishing, the monitor,
// and the HTTP server into a runnable trainwatch service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pengKiina/trainwatch/config"
	"github.com/pengKiina/trainwatch/internal/domain"
	httpapi "github.com/pengKiina/trainwatch/internal/http"
	"github.com/pengKiina/trainwatch/internal/monitor"
	"github.com/pengKiina/trainwatch/internal/queue"
	"github.com/pengKiina/trainwatch/internal/search"
	"github.com/pengKiina/trainwatch/internal/storage"
	loggerpkg "github.com/pengKiina/trainwatch/logger"
	"github.com/pengKiina/trainwatch/util"
)

const (
	defaultAddr         = ":8083"
	defaultLogFile      = "train.log"
	defaultScanInterval = 5 * time.Second

	minioPingRetries  = 5
	minioPingMinDelay = 200 * time.Millisecond
	minioPingMaxDelay = 5 * time.Second
)

// BuildInfo carries version metadata stamped at link time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// AppConfig holds the runtime options required to start the service.
type AppConfig struct {
	Addr         string
	LogFile      string
	ScanInterval time.Duration
	Storage      config.StorageConfig
	Kafka        config.KafkaSettings
	Search       config.SearchConfig
}

// App runs the monitor and HTTP server until stopped.
type App struct {
	cfg    AppConfig
	logger loggerpkg.Logger
	build  BuildInfo
}

// BuildApp loads file-based configuration and applies CLI overrides.
func BuildApp(cliCfg config.CLIConfig, logr loggerpkg.Logger, build BuildInfo) (*App, error) {
	appCfg := AppConfig{
		Addr:         cliCfg.Addr,
		LogFile:      cliCfg.LogFile,
		ScanInterval: cliCfg.ScanInterval,
	}

	if cliCfg.ConfigPath != "" {
		fileCfg, err := config.Load(cliCfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
		if appCfg.Addr == "" {
			appCfg.Addr = fileCfg.Server.Addr
		}
		if appCfg.LogFile == "" {
			appCfg.LogFile = fileCfg.Watch.LogFile
		}
		if appCfg.ScanInterval <= 0 {
			interval, err := fileCfg.ScanInterval(defaultScanInterval)
			if err != nil {
				return nil, fmt.Errorf("invalid scan interval: %w", err)
			}
			appCfg.ScanInterval = interval
		}
		appCfg.Storage = fileCfg.Storage
		appCfg.Kafka = fileCfg.Kafka
		appCfg.Search = fileCfg.Search
	}

	return NewApp(appCfg, logr, build)
}

// NewApp returns a configured App instance with defaults applied.
func NewApp(cfg AppConfig, logr loggerpkg.Logger, build BuildInfo) (*App, error) {
	if logr == nil {
		logr = loggerpkg.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.LogFile == "" {
		cfg.LogFile = defaultLogFile
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = defaultScanInterval
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = config.StorageBackendFile
	}
	if cfg.Storage.ArchiveDir == "" {
		cfg.Storage.ArchiveDir = "archive"
	}
	return &App{cfg: cfg, logger: logr, build: build}, nil
}

// Run starts the monitor and HTTP server until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.logger.Info("starting trainwatch",
		loggerpkg.F("version", a.build.Version),
		loggerpkg.F("logFile", a.cfg.LogFile),
		loggerpkg.F("addr", a.cfg.Addr))

	store, err := a.buildStore(ctx)
	if err != nil {
		return err
	}

	publisher, err := a.buildPublisher()
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			a.logger.Error("close publisher", loggerpkg.F("error", err))
		}
	}()

	mon, err := monitor.New(monitor.Config{
		LogFile:   a.cfg.LogFile,
		Interval:  a.cfg.ScanInterval,
		Store:     store,
		Publisher: publisher,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("build monitor: %w", err)
	}
	mon.Start(ctx)

	preset, err := search.CompileAll(a.cfg.Search.PresetConditions)
	if err != nil {
		return fmt.Errorf("compile preset search conditions: %w", err)
	}

	mux := http.NewServeMux()
	httpapi.NewHandler(a.cfg.LogFile, mon, a.logger).
		WithPresetConditions(preset...).
		RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{Addr: a.cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

func (a *App) buildStore(ctx context.Context) (domain.Store, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageBackendMinIO:
		opts := a.cfg.Storage.MinIO
		store, err := storage.NewMinIOStore(storage.MinIOOptions{
			Endpoint:  opts.Endpoint,
			Bucket:    opts.Bucket,
			AccessKey: opts.AccessKey,
			SecretKey: opts.SecretKey,
			UseSSL:    opts.UseSSL,
			Prefix:    opts.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("build minio store: %w", err)
		}
		if err := a.pingMinIO(ctx, store); err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageBackendFile:
		return storage.NewFileStore(a.cfg.Storage.ArchiveDir, a.logger), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
}

// pingMinIO verifies object storage is reachable, backing off between
// attempts so a service starting alongside MinIO does not flap.
func (a *App) pingMinIO(ctx context.Context, store *storage.MinIOStore) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	backoff := util.NewBackoff(minioPingMinDelay, minioPingMaxDelay, rng)
	var lastErr error

	for attempt := 1; attempt <= minioPingRetries; attempt++ {
		if lastErr = store.Ping(ctx); lastErr == nil {
			return nil
		}
		a.logger.Warn("minio not reachable",
			loggerpkg.F("attempt", attempt),
			loggerpkg.F("error", lastErr))

		if !util.Wait(ctx, backoff.Next()) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("minio unreachable after %d attempts: %w", minioPingRetries, lastErr)
}

func (a *App) buildPublisher() (domain.Publisher, error) {
	if !a.cfg.Kafka.Enabled {
		return queue.NopPublisher{}, nil
	}
	batchTimeout, err := a.cfg.Kafka.KafkaBatchTimeout(time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid kafka batch timeout: %w", err)
	}
	publisher, err := queue.NewKafkaPublisher(queue.KafkaConfig{
		Brokers:      a.cfg.Kafka.Brokers,
		Topic:        a.cfg.Kafka.Topic,
		BatchSize:    a.cfg.Kafka.BatchSize,
		BatchTimeout: batchTimeout,
		RequireAll:   a.cfg.Kafka.RequireAllAcks,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("build kafka publisher: %w", err)
	}
	return publisher, nil
}
