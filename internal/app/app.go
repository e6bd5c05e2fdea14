package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foxzi/recupero/internal/api"
	"github.com/foxzi/recupero/internal/campaign"
	"github.com/foxzi/recupero/internal/config"
	"github.com/foxzi/recupero/internal/cut"
	"github.com/foxzi/recupero/internal/db"
	"github.com/foxzi/recupero/internal/dispatch"
	"github.com/foxzi/recupero/internal/idempotency"
	"github.com/foxzi/recupero/internal/kapso"
	"github.com/foxzi/recupero/internal/metrics"
	"github.com/foxzi/recupero/internal/repository"
	"github.com/foxzi/recupero/internal/schedule"
	"github.com/foxzi/recupero/internal/webhook"
)

// App is the main application
type App struct {
	config *config.Config
	logger *slog.Logger

	db         *db.DB
	campaigns  *repository.CampaignRepository
	persons    *repository.PersonRepository
	calls      *repository.CallRepository
	kapso      *kapso.Client
	dispatcher *dispatch.Dispatcher
	campaignSv *campaign.Service
	cuts       *cut.Service

	// Serving components, created by Run
	idem       idempotency.Store
	cleaner    *idempotency.Cleaner
	webhooks   *webhook.Handler
	apiServer  *api.Server
	scheduler  *schedule.Scheduler
	metricsSrv *metrics.Server
	collector  *metrics.Collector
}

// New creates the application core: storage, upstream client and services.
// Serving components are created by Run so one-shot commands never take the
// idempotency store lock.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)
	return NewWithLogger(cfg, logger)
}

// NewWithLogger is New with a caller-provided logger
func NewWithLogger(cfg *config.Config, logger *slog.Logger) (*App, error) {
	database, err := db.New(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := &App{
		config:    cfg,
		logger:    logger,
		db:        database,
		campaigns: repository.NewCampaignRepository(database.DB),
		persons:   repository.NewPersonRepository(database.DB),
		calls:     repository.NewCallRepository(database.DB),
	}

	a.kapso = kapso.NewClient(kapso.Options{
		BaseURL:           cfg.Kapso.BaseURL,
		APIKey:            cfg.Kapso.APIKey,
		PhoneNumberID:     cfg.Kapso.PhoneNumberID,
		Timeout:           cfg.Kapso.Timeout,
		RequestsPerSecond: cfg.Kapso.RequestsPerSecond,
		Burst:             cfg.Kapso.Burst,
	})

	a.dispatcher = dispatch.New(dispatch.Config{
		BatchSize:  cfg.Dispatch.BatchSize,
		BatchDelay: cfg.Dispatch.BatchDelay,
		DryRun:     cfg.Dispatch.DryRun,
		MaxErrors:  cfg.Dispatch.MaxErrorsInReport,
		Location:   cfg.Location(),
	}, a.campaigns, a.persons, a.kapso, logger)

	a.campaignSv = campaign.NewService(a.campaigns, a.persons, logger)

	sink, err := newSink(context.Background(), cfg.Cut)
	if err != nil {
		database.Close()
		return nil, err
	}
	a.cuts = cut.NewService(a.campaigns, a.persons, sink, cfg.Location(), logger)

	if cfg.Dispatch.DryRun {
		logger.Warn("dry run enabled, no workflows will be executed")
	}

	return a, nil
}

func newSink(ctx context.Context, cfg config.CutConfig) (cut.Sink, error) {
	switch cfg.Sink {
	case "s3":
		sink, err := cut.NewS3Sink(ctx, cut.S3Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 sink: %w", err)
		}
		return sink, nil
	default:
		return cut.NewLocalSink(cfg.LocalDir), nil
	}
}

// Dispatcher returns the dispatch batcher
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// Campaigns returns the campaign service
func (a *App) Campaigns() *campaign.Service {
	return a.campaignSv
}

// Cuts returns the daily cut service
func (a *App) Cuts() *cut.Service {
	return a.cuts
}

// Logger returns the application logger
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Close releases storage. Use it after one-shot commands; Run closes
// everything itself.
func (a *App) Close() error {
	return a.db.Close()
}

// setupServing creates the idempotency store, HTTP servers, scheduler and
// metrics
func (a *App) setupServing(ctx context.Context) error {
	cfg := a.config

	idem, err := a.openIdempotency(ctx)
	if err != nil {
		return err
	}
	a.idem = idem

	a.webhooks = webhook.NewHandler(webhook.Config{
		KapsoSecret:        cfg.Webhooks.KapsoSecret,
		RetellSecret:       cfg.Webhooks.RetellSecret,
		FollowUpWorkflowID: cfg.Kapso.FollowUpWorkflowID,
		DryRun:             cfg.Dispatch.DryRun,
	}, a.persons, a.calls, a.campaigns, a.campaignSv, a.kapso, a.idem, a.logger)

	persons := campaign.NewPersonService(a.persons, a.calls)
	a.apiServer = api.NewServer(&cfg.API, a.dispatcher, a.campaignSv, persons, a.cuts, a.webhooks.Routes(), a.logger)

	if cfg.Schedule.Enabled {
		loc, err := time.LoadLocation(cfg.Schedule.Timezone)
		if err != nil {
			return fmt.Errorf("invalid schedule timezone: %w", err)
		}
		a.scheduler, err = schedule.New(schedule.Config{
			ContactSpec: cfg.Schedule.ContactSpec,
			CutSpec:     cfg.Schedule.CutSpec,
			Location:    loc,
		}, a.dispatcher, a.cuts, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		a.metricsSrv = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, a.logger)
		a.collector = metrics.NewCollector(m, a.persons, cfg.Storage.Path, cfg.Schedule.StatsInterval, a.logger.With("component", "metrics_collector"))
	}

	return nil
}

func (a *App) openIdempotency(ctx context.Context) (idempotency.Store, error) {
	cfg := a.config
	switch cfg.Storage.IdempotencyBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.logger.Info("idempotency store ready", "backend", "redis", "addr", cfg.Redis.Addr)
		return idempotency.NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Storage.IdempotencyTTL), nil
	default:
		store, err := idempotency.NewBoltStore(cfg.Storage.BoltPath, cfg.Storage.IdempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to open idempotency store: %w", err)
		}
		a.cleaner = idempotency.NewCleaner(store, time.Hour, a.logger.With("component", "idempotency_cleaner"))
		a.logger.Info("idempotency store ready", "backend", "bolt", "path", cfg.Storage.BoltPath)
		return store, nil
	}
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	if err := a.setupServing(ctx); err != nil {
		a.Close()
		return err
	}

	a.logger.Info("starting recupero",
		"api_addr", a.config.API.ListenAddr,
		"timezone", a.config.Server.Timezone,
		"schedule", a.config.Schedule.Enabled,
		"dry_run", a.config.Dispatch.DryRun,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.cleaner != nil {
		a.cleaner.Start(ctx)
	}
	if a.collector != nil {
		a.collector.Start(ctx)
	}
	if a.scheduler != nil {
		a.scheduler.Start()
	}

	// Channel to collect errors
	errCh := make(chan error, 2)

	// Start API server
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Start metrics server
	if a.metricsSrv != nil {
		go func() {
			if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Create timeout context
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop scheduled jobs first (stop starting new work)
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if a.apiServer != nil {
		if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("api server shutdown error", "error", err)
		}
	}

	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Follow-up executions started by call webhooks
	if a.webhooks != nil {
		a.webhooks.Wait()
	}

	if a.collector != nil {
		a.collector.Stop()
	}
	if a.cleaner != nil {
		a.cleaner.Stop()
	}

	if a.idem != nil {
		if err := a.idem.Close(); err != nil {
			a.logger.Error("idempotency store close error", "error", err)
		}
	}

	// Close storage
	if err := a.db.Close(); err != nil {
		a.logger.Error("database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
