package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/marketsync/internal/bootstrap"
	"github.com/erp/marketsync/internal/infrastructure/config"
	"github.com/erp/marketsync/internal/interfaces/http/handler"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/erp/marketsync/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	shutdownTimeout    = 30 * time.Second
	rateLimiterIdleTTL = 10 * time.Minute
)

//go:generate swag init -d ../../ -g cmd/server/main.go -o ../../docs --parseInternal

//	@title			Marketplace Sync API
//	@version		1.0
//	@description	Order, consignment and return synchronization between the shop and the marketplace

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := bootstrap.NewLogger(cfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting marketsync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", bootstrap.Version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	log = app.Logger

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateLimitBurst, rateLimiterIdleTTL)
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, bootstrap.Version, map[string]handler.Pinger{
		"database": app.DB,
	})
	engine, err := router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		RateLimiter:    limiter,
		Meter:          app.Telemetry.Meter(),
		TracingEnabled: app.Telemetry.IsEnabled(),
		Health:         systemHandler.Health,
		Profiling:      app.Profiler.IsEnabled(),
		Swagger: middleware.SwaggerConfig{
			Enabled:    cfg.Swagger.Enabled,
			AllowedIPs: cfg.Swagger.AllowedIPs,
		},
	}, log)
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	router.NewRouter(engine).Register(
		systemHandler,
		handler.NewOrderHandler(app.Orders),
		handler.NewConsignmentHandler(app.Consignments),
		handler.NewReturnHandler(app.Returns),
		handler.NewTrackingHandler(app.Ingestor, cfg.HTTP.WebhookToken),
	).Setup()

	if cfg.HTTP.WebhookToken == "" {
		log.Warn("Carrier webhook accepts unauthenticated requests; set http.webhook_token")
	}

	if cfg.Scheduler.Enabled {
		if err := app.Scheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	if limiter != nil {
		go sweepLimiter(ctx, limiter, log)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serveErr:
		log.Error("HTTP server failed", zap.Error(err))
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := app.Scheduler.Stop(shutdownCtx); err != nil {
		log.Error("Scheduler did not stop cleanly", zap.Error(err))
	}
	if err := app.Close(shutdownCtx); err != nil {
		log.Error("Error releasing resources", zap.Error(err))
	}

	log.Info("Server exited", zap.Int("exit_code", exitCode))
	if exitCode != 0 {
		_ = log.Sync()
		os.Exit(exitCode)
	}
}

// sweepLimiter drops idle rate limit buckets until ctx ends
func sweepLimiter(ctx context.Context, limiter *middleware.RateLimiter, log *zap.Logger) {
	ticker := time.NewTicker(rateLimiterIdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(); n > 0 {
				log.Debug("Swept idle rate limit buckets", zap.Int("removed", n))
			}
		}
	}
}
