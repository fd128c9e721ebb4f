// Package bootstrap assembles the sync services from configuration. It is
// shared by the HTTP server and the one-shot job runner.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	appfulfillment "github.com/erp/marketsync/internal/application/fulfillment"
	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/domain/shared"
	"github.com/erp/marketsync/internal/infrastructure/cache"
	"github.com/erp/marketsync/internal/infrastructure/carrier"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/infrastructure/marketplace"
	"github.com/erp/marketsync/internal/infrastructure/persistence"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/erp/marketsync/internal/infrastructure/storage"
	"github.com/erp/marketsync/internal/infrastructure/telemetry"
	"github.com/erp/marketsync/internal/infrastructure/validation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is stamped at build time with -ldflags "-X ...bootstrap.Version=..."
var Version = "dev"

// App holds the wired services and the resources that must be released on exit
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Telemetry *telemetry.Providers
	Profiler  *telemetry.Profiler
	DB        *persistence.Database

	Orders       *appfulfillment.OrderService
	Consignments *appfulfillment.ConsignmentService
	Returns      *appfulfillment.ReturnService
	Ingestor     *appfulfillment.TrackingIngestor
	Poller       *appfulfillment.TrackingPoller
	Scheduler    *scheduler.Scheduler

	idempotency shared.IdempotencyStore
}

// NewLogger builds the process logger from cfg.Log
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
}

// New wires every component. On error, anything already opened is closed.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (app *App, err error) {
	app = &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
			app = nil
		}
	}()

	app.Profiler, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:              cfg.Profiler.Enabled,
		ServerAddress:        cfg.Profiler.ServerAddress,
		ApplicationName:      cfg.Profiler.ApplicationName,
		BasicAuthUser:        cfg.Profiler.BasicAuthUser,
		BasicAuthPassword:    cfg.Profiler.BasicAuthPassword,
		ProfileTypes:         cfg.Profiler.ProfileTypes,
		MutexProfileFraction: cfg.Profiler.MutexProfileFraction,
		BlockProfileRate:     cfg.Profiler.BlockProfileRate,
		DisableGCRuns:        cfg.Profiler.DisableGCRuns,
	}, log)
	if err != nil {
		return app, err
	}

	app.Telemetry, err = telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    Version,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
		SpanProfiles:      cfg.Profiler.SpanProfiles && app.Profiler.IsEnabled(),
	}, log)
	if err != nil {
		return app, fmt.Errorf("telemetry: %w", err)
	}
	if cfg.Telemetry.LogsEnabled {
		otelCore := app.Telemetry.LogCore(logger.ParseLevel(cfg.Log.Level))
		log = log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, otelCore)
		}))
		app.Logger = log
	}

	syncMetrics, err := telemetry.NewSyncMetrics(app.Telemetry.Meter())
	if err != nil {
		return app, fmt.Errorf("sync metrics: %w", err)
	}

	app.DB, err = persistence.NewDatabase(ctx, &cfg.Database,
		persistence.WithLogger(log, logger.MapGormLogLevel(cfg.Log.Level)),
		persistence.WithTracing(telemetry.DBTracingConfig{
			Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
			LogFullSQL: cfg.Telemetry.DBLogFullSQL,
		}),
	)
	if err != nil {
		return app, fmt.Errorf("database: %w", err)
	}

	orderRepo := persistence.NewGormOrderRepository(app.DB.DB)
	consignmentRepo := persistence.NewGormConsignmentRepository(app.DB.DB)
	returnRepo := persistence.NewGormReturnRepository(app.DB.DB)
	credentialRepo := persistence.NewGormCredentialRepository(app.DB.DB)

	vendorCfg := &marketplace.Config{
		BaseURL:                cfg.Vendor.BaseURL,
		TokenURL:               cfg.Vendor.TokenURL,
		ClientID:               cfg.Vendor.ClientID,
		ClientSecret:           cfg.Vendor.ClientSecret,
		Username:               cfg.Vendor.Username,
		Password:               cfg.Vendor.Password,
		Scope:                  cfg.Vendor.Scope,
		TimeoutSeconds:         cfg.Vendor.TimeoutSeconds,
		MaxUnauthorizedRetries: cfg.Vendor.MaxUnauthorizedRetries,
		CallDelay:              cfg.Vendor.CallDelay,
	}
	tokenClient, err := marketplace.NewTokenClient(vendorCfg, log)
	if err != nil {
		return app, fmt.Errorf("vendor token client: %w", err)
	}
	tokens := appintegration.NewTokenManager(credentialRepo, tokenClient, cfg.Vendor.TokenLease, log)
	vendor, err := marketplace.NewClient(vendorCfg, tokens, log, marketplace.WithRecorder(syncMetrics))
	if err != nil {
		return app, fmt.Errorf("vendor client: %w", err)
	}

	tracker, err := carrier.NewPollClient(&carrier.PollConfig{
		BaseURL:        cfg.Carrier.BaseURL,
		APIKey:         cfg.Carrier.APIKey,
		APIKeyHeader:   cfg.Carrier.APIKeyHeader,
		TimeoutSeconds: cfg.Carrier.TimeoutSeconds,
		PollDelay:      cfg.Carrier.PollDelay,
	}, log)
	if err != nil {
		return app, fmt.Errorf("carrier client: %w", err)
	}

	app.idempotency, err = cache.NewIdempotencyStore(ctx, cfg.Idempotency, cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	)
	if err != nil {
		return app, err
	}

	validator := validation.New()
	ledger := appfulfillment.NewCancellationLedger(orderRepo, validator, log)

	app.Orders = appfulfillment.NewOrderService(orderRepo, vendor, ledger, validator, log)
	app.Consignments = appfulfillment.NewConsignmentService(consignmentRepo, orderRepo, vendor, validator, log)
	app.Returns = appfulfillment.NewReturnService(returnRepo, orderRepo, ledger, vendor, validator, log)
	app.Ingestor = appfulfillment.NewTrackingIngestor(app.Consignments, orderRepo, consignmentRepo, app.idempotency,
		appfulfillment.TrackingIngestorConfig{
			CustomerNumber: cfg.Feed.CustomerNumber,
			Idempotency: shared.IdempotencyConfig{
				Enabled: cfg.Idempotency.Enabled,
				TTL:     cfg.Idempotency.TTL,
			},
		}, log)
	app.Poller = appfulfillment.NewTrackingPoller(app.Consignments, tracker, log)

	app.Orders.SetSyncMetrics(syncMetrics)
	app.Consignments.SetSyncMetrics(syncMetrics)
	app.Ingestor.SetSyncMetrics(syncMetrics)
	app.Poller.SetSyncMetrics(syncMetrics)

	feedSource, err := newFeedSource(ctx, cfg, log)
	if err != nil {
		return app, err
	}
	parser := carrier.NewFeedParser(
		carrier.WithDelimiter(cfg.Feed.FeedDelimiter()),
		carrier.WithDefaultCarrier(cfg.Feed.DefaultCarrier),
	)

	schedCfg := scheduler.DefaultConfig()
	schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
	app.Scheduler, err = scheduler.New(schedCfg, log)
	if err != nil {
		return app, fmt.Errorf("scheduler: %w", err)
	}
	app.Scheduler.SetSyncMetrics(syncMetrics)

	if err := errors.Join(
		app.Scheduler.Register(scheduler.NewFetchOrdersJob(app.Orders), cfg.Scheduler.FetchOrdersInterval),
		app.Scheduler.Register(scheduler.NewPollTrackingJob(app.Poller), cfg.Scheduler.PollTrackingInterval),
		app.Scheduler.Register(scheduler.NewFeedImportJob(feedSource, parser, app.Ingestor, app.Consignments, log),
			cfg.Scheduler.ImportFeedInterval),
	); err != nil {
		return app, fmt.Errorf("scheduler: %w", err)
	}

	return app, nil
}

func newFeedSource(ctx context.Context, cfg *config.Config, log *zap.Logger) (integration.FeedSource, error) {
	if cfg.Feed.Source == "s3" {
		src, err := storage.NewS3FeedSource(ctx, &cfg.Storage,
			storage.WithLogger(log),
			storage.WithPattern(cfg.Feed.Pattern),
		)
		if err != nil {
			return nil, fmt.Errorf("s3 feed source: %w", err)
		}
		return src, nil
	}
	src, err := carrier.NewFileFeedSource(cfg.Feed.Dir, cfg.Feed.Pattern)
	if err != nil {
		return nil, fmt.Errorf("feed directory: %w", err)
	}
	return src, nil
}

// Close releases the database, the idempotency store, the telemetry
// exporters and the profiler. It is safe on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.idempotency != nil {
		errs = append(errs, a.idempotency.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Telemetry != nil {
		errs = append(errs, a.Telemetry.Shutdown(ctx))
	}
	if a.Profiler != nil {
		errs = append(errs, a.Profiler.Stop())
	}
	return errors.Join(errs...)
}
