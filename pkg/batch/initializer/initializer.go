// Package initializer assembles the application from its configuration:
// database, store, job repository, blob publisher, importer bundles and one
// pipeline per configured library.
package initializer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"landscapesim/pkg/batch/config"
	"landscapesim/pkg/batch/database"
	"landscapesim/pkg/batch/database/connector"
	"landscapesim/pkg/batch/repository"
	"landscapesim/pkg/batch/util/exception"
	"landscapesim/pkg/batch/util/logger"
	"landscapesim/pkg/landscape/contrib"
	"landscapesim/pkg/landscape/engine"
	"landscapesim/pkg/landscape/metric"
	"landscapesim/pkg/landscape/model"
	"landscapesim/pkg/landscape/pipeline"
	"landscapesim/pkg/landscape/publish"
	"landscapesim/pkg/landscape/runjob"
	"landscapesim/pkg/landscape/store"
)

const module = "initializer"

const (
	defaultConnectRetries = 10
	defaultConnectDelay   = 5 * time.Second
)

// BatchInitializer builds an App from a loaded configuration.
type BatchInitializer struct {
	Config *config.Config
	// Runner replaces the process runner of every engine adapter. Nil runs
	// the configured executable.
	Runner engine.CommandRunner
	// Cleaner replaces the SQLite sheet cleaner.
	Cleaner pipeline.Cleaner

	ConnectRetries int
	ConnectDelay   time.Duration
}

// NewBatchInitializer returns an initializer for cfg.
func NewBatchInitializer(cfg *config.Config) *BatchInitializer {
	return &BatchInitializer{
		Config:         cfg,
		ConnectRetries: defaultConnectRetries,
		ConnectDelay:   defaultConnectDelay,
	}
}

// LoadConfig loads envFile into the environment, parses the embedded YAML
// document with environment overrides, validates it and configures logging.
func LoadConfig(envFile string, embedded []byte) (*config.Config, error) {
	config.LoadDotEnv(envFile)
	cfg, err := config.NewBytesConfigLoader(embedded).Load()
	if err != nil {
		return nil, exception.New(exception.KindConfiguration, module, "failed to load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.SetLogLevel(cfg.System.Logging.Level)
	logger.Infof("logging level set to '%s'", cfg.System.Logging.Level)
	return cfg, nil
}

// App holds the assembled components. Pipelines and Service are filled by
// OpenLibraries.
type App struct {
	Config        *config.Config
	Conn          database.DBConnection
	Store         store.Store
	JobRepository repository.JobRepository
	Metrics       *metric.Metrics
	Publisher     *publish.Publisher
	Bundles       *contrib.Registry
	Registrar     *pipeline.Registrar

	Pipelines map[string]*pipeline.Pipeline
	Service   *runjob.Service
	Poller    *runjob.Poller
}

// connectWithRetry opens the configured database, retrying until it answers
// a ping. Configuration errors are not retried.
func connectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, delay time.Duration) (database.DBConnection, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		logger.Debugf("connecting to %s database (attempt %d/%d)", cfg.Type, i+1, maxRetries)
		conn, err := connector.NewDBConnectionFromConfig(ctx, cfg)
		if err == nil {
			logger.Infof("connected to %s database", cfg.Type)
			return conn, nil
		}
		if exception.IsKind(err, exception.KindConfiguration) {
			return nil, err
		}
		lastErr = err
		logger.Warnf("database connection failed: %v", err)
		if i == maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, exception.New(exception.KindConfiguration, module,
		fmt.Sprintf("could not connect to the database after %d attempts", maxRetries), lastErr)
}

// Initialize connects the database, applies migrations and builds every
// component that does not need the engine.
func (bi *BatchInitializer) Initialize(ctx context.Context) (*App, error) {
	cfg := bi.Config
	if cfg == nil {
		return nil, exception.New(exception.KindConfiguration, module, "no configuration loaded", nil)
	}
	app := &App{Config: cfg}

	if !strings.EqualFold(cfg.Database.Type, "memory") {
		conn, err := connectWithRetry(ctx, cfg.Database, bi.ConnectRetries, bi.ConnectDelay)
		if err != nil {
			return nil, err
		}
		app.Conn = conn
		if err := connector.RunMigrations(cfg.Database); err != nil {
			_ = app.Close()
			return nil, err
		}
	}
	app.Store = store.New(cfg.Database, app.Conn)
	app.JobRepository = repository.NewJobRepository(cfg.Database, app.Conn)

	if cfg.Metrics.Enabled {
		m, err := metric.New()
		if err != nil {
			_ = app.Close()
			return nil, exception.New(exception.KindInternal, module, "failed to register metrics", err)
		}
		app.Metrics = m
	}

	pub, err := publish.FromConfig(ctx, cfg.Publish)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Publisher = pub

	app.Bundles = contrib.NewRegistry()
	if err := contrib.RegisterDefaults(app.Bundles, cfg.Libraries); err != nil {
		_ = app.Close()
		return nil, err
	}

	platform, err := engine.DetectPlatform(cfg.Engine.Platform, cfg.Engine.Launcher)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	open := func(ctx context.Context, lib *model.Library) (engine.Console, error) {
		return engine.New(ctx, engine.Options{
			Executable:      cfg.Engine.Executable,
			Library:         lib.File,
			OriginalLibrary: lib.OriginalFile,
			Console:         cfg.Engine.Console,
			Platform:        platform,
			TempDir:         cfg.Engine.TempDir,
			Runner:          bi.Runner,
			Metrics:         app.Metrics,
		})
	}
	cleaner := bi.Cleaner
	if cleaner == nil {
		cleaner = pipeline.SQLiteCleaner{}
	}
	app.Registrar = pipeline.NewRegistrar(open, pipeline.Options{
		Store:         app.Store,
		Repository:    app.JobRepository,
		Publisher:     app.Publisher,
		Cleaner:       cleaner,
		Metrics:       app.Metrics,
		KeepTempFiles: cfg.Engine.KeepTempFiles,
		ChunkSize:     cfg.Batch.ChunkSize,
	}, app.Bundles)

	logger.Infof("application initialized. database: %s, publish: %q, libraries: %d",
		cfg.Database.Type, cfg.Publish.Driver, len(cfg.Libraries))
	return app, nil
}

// OpenLibraries opens every configured library, registering those the store
// does not know yet, and builds the job service over them.
func (a *App) OpenLibraries(ctx context.Context) error {
	pipelines := make(map[string]*pipeline.Pipeline, len(a.Config.Libraries))
	for _, l := range a.Config.Libraries {
		p, err := a.Registrar.Open(ctx, l.Name, l.File, l.OriginalFile)
		if err != nil {
			return exception.Newf(exception.KindOf(err), module, "library %q could not be opened", l.Name, err)
		}
		pipelines[l.Name] = p
	}
	a.Pipelines = pipelines
	a.Service = runjob.NewService(runjob.Options{
		Store:     a.Store,
		Pipelines: pipelines,
		Metrics:   a.Metrics,
		JobName:   a.Config.Batch.JobName,
	})
	a.Poller = runjob.NewPoller(a.Service)
	return nil
}

// PollInterval returns the configured interval of the output poller.
func (a *App) PollInterval() time.Duration {
	n := a.Config.Batch.PollingIntervalSeconds
	if n <= 0 {
		n = 30
	}
	return time.Duration(n) * time.Second
}

// Close releases the database connection.
func (a *App) Close() error {
	var errs []error
	if a.Conn != nil {
		if err := a.Conn.Close(); err != nil {
			logger.Errorf("failed to close the database connection: %v", err)
			errs = append(errs, err)
		} else {
			logger.Infof("database connection closed")
		}
		a.Conn = nil
	}
	return errors.Join(errs...)
}
