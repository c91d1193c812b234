// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/dartsatlas-scraper/internal/api"
	"github.com/JakeFAU/dartsatlas-scraper/internal/clock/system"
	"github.com/JakeFAU/dartsatlas-scraper/internal/config"
	"github.com/JakeFAU/dartsatlas-scraper/internal/engine"
	"github.com/JakeFAU/dartsatlas-scraper/internal/extract"
	collyfetcher "github.com/JakeFAU/dartsatlas-scraper/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/dartsatlas-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/dartsatlas-scraper/internal/id/uuid"
	"github.com/JakeFAU/dartsatlas-scraper/internal/logging"
	"github.com/JakeFAU/dartsatlas-scraper/internal/metrics"
	"github.com/JakeFAU/dartsatlas-scraper/internal/policy/ratelimit"
	memorypublisher "github.com/JakeFAU/dartsatlas-scraper/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/dartsatlas-scraper/internal/publisher/pubsub"
	"github.com/JakeFAU/dartsatlas-scraper/internal/results"
	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
	gcsstorage "github.com/JakeFAU/dartsatlas-scraper/internal/storage/gcs"
	localstorage "github.com/JakeFAU/dartsatlas-scraper/internal/storage/local"
	memorystorage "github.com/JakeFAU/dartsatlas-scraper/internal/storage/memory"
	pgstore "github.com/JakeFAU/dartsatlas-scraper/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	engine    *engine.Engine
	apiServer *api.Server

	gcs      *gcsstorage.BlobStore
	pubsub   *gcppublisher.Publisher
	events   *memorypublisher.Publisher
	store    *pgstore.TournamentStore
	headless *headlessfetcher.Factory
	closed   bool
}

// memoryTopic names the topic completion events are recorded under when no
// Pub/Sub topic is configured.
const memoryTopic = "scrape-completed"

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("base_url", cfg.Scraper.BaseURL),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("headless", cfg.Headless.Enabled),
	)

	blobs, err := app.setupStorage(ctx)
	if err != nil {
		return nil, err
	}

	store, err := app.setupDatabase(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	publisher, topic, err := app.setupPublisher(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	writer, err := results.New(
		results.Config{Prefix: cfg.Storage.Prefix, Topic: topic},
		blobs,
		store,
		publisher,
		system.New(),
		logger.Named("results"),
	)
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("results writer init failed: %w", err)
	}

	app.engine = engine.New(
		engine.Config{
			BaseURL:         cfg.Scraper.BaseURL,
			ProbeTimeout:    cfg.Scraper.ProbeTimeout,
			RequestTimeout:  cfg.Scraper.RequestTimeout,
			RetryCooldown:   cfg.Scraper.RetryCooldown,
			ScrapeTimeout:   cfg.Scraper.ScrapeTimeout,
			MaxPagesDefault: cfg.Scraper.MaxPagesDefault,
			RateLimit: ratelimit.Config{
				Interval: cfg.RateLimit.Interval,
				Burst:    cfg.RateLimit.Burst,
			},
		},
		app.setupSessions(),
		extract.New(system.New(), logger.Named("extract")),
		writer,
		uuid.New(),
		logger.Named("engine"),
	)
	app.apiServer = api.NewServer(app.engine, cfg, logger.Named("api"))
	return app, nil
}

// Engine returns the scrape engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Handler returns the HTTP handler of the API server.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run serves the API and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return closeErr
}

// Close gracefully shuts down the application. It is safe to call twice.
func (a *App) Close(_ context.Context) error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (a *App) setupStorage(ctx context.Context) (scraper.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		var opts []option.ClientOption
		if a.cfg.Storage.GCSEndpoint != "" {
			opts = append(opts, option.WithoutAuthentication())
		}
		blobs, err := gcsstorage.Open(ctx, gcsstorage.Config{
			Bucket:   a.cfg.Storage.GCSBucket,
			Endpoint: a.cfg.Storage.GCSEndpoint,
		}, opts...)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.gcs = blobs
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return blobs, nil
	case config.StorageLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.LocalDir))
		return blobs, nil
	default:
		a.logger.Info("using in-memory storage backend")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupDatabase(ctx context.Context) (scraper.TournamentStore, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no DSN specified for database, skipping tournament store")
		return nil, nil
	}
	store, err := pgstore.NewTournamentStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		Table:           a.cfg.DB.Table,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("tournament store init failed: %w", err)
	}
	a.store = store
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("tournament schema init failed: %w", err)
	}
	a.logger.Info("tournament store initialized", zap.String("table", a.cfg.DB.Table))
	return store, nil
}

// setupPublisher returns the completion-event publisher and the topic it publishes to.
func (a *App) setupPublisher(ctx context.Context) (scraper.Publisher, string, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Warn("no Pub/Sub topic configured, recording completion events in memory",
			zap.String("topic", memoryTopic),
		)
		a.events = memorypublisher.New()
		return a.events, memoryTopic, nil
	}
	publisher, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID, a.cfg.PubSub.TopicName)
	if err != nil {
		return nil, "", fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pubsub = publisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return publisher, a.cfg.PubSub.TopicName, nil
}

func (a *App) setupSessions() scraper.SessionFactory {
	if a.cfg.Headless.Enabled {
		a.headless = headlessfetcher.New(headlessfetcher.Config{
			UserAgent:         a.cfg.Scraper.UserAgent,
			NavigationTimeout: a.cfg.Headless.NavigationTimeout,
			SettleDelay:       a.cfg.Headless.SettleDelay,
		}, a.logger.Named("headless"))
		a.logger.Info("using headless fetch sessions", zap.Duration("navigation_timeout", a.cfg.Headless.NavigationTimeout))
		return a.headless
	}
	a.logger.Info("using colly fetch sessions", zap.Duration("request_timeout", a.cfg.Scraper.RequestTimeout))
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Scraper.UserAgent,
		RespectRobots: a.cfg.Scraper.RespectRobots,
		Timeout:       a.cfg.Scraper.RequestTimeout,
	}, a.logger.Named("fetch"))
}

// ScrapeWithTimeout runs one bounded scrape on the application's engine.
func (a *App) ScrapeWithTimeout(ctx context.Context, opts scraper.Options, d time.Duration) (scraper.ScrapeResult, error) {
	return a.engine.ScrapeWithTimeout(ctx, opts, d)
}
