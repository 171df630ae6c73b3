package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/catalog"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/api"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/cache"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

const (
	maxBodySize     = "1M"
	shutdownTimeout = 15 * time.Second
)

// deps is everything the router needs. Tests build it without a database.
type deps struct {
	cfg       *config.Config
	logger    zerolog.Logger
	telemetry *telemetry.TelemetryProvider
	catalog   *catalog.Service
	billing   *billing.Service
	pinger    db.Pinger
	poolStats func() *db.PoolStats
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set, requests run as the development admin")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	pool, err := db.NewPool(ctx, db.PoolOptions{
		DatabaseURL: cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		Schema:      cfg.DBSchema,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	var store cache.Store = cache.NopStore{}
	if cfg.RedisURL != "" {
		rs, err := cache.NewRedisStore(ctx, cfg.RedisURL, "clinic:")
		if err != nil {
			// The catalog still works without a cache; reads go to Postgres.
			logger.Warn().Err(err).Msg("redis unavailable, catalog cache disabled")
		} else {
			defer rs.Close()
			store = rs
			logger.Info().Msg("catalog cache enabled")
		}
	}

	tp := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{
		ServiceName:    "clinic-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		IncludeRuntime: true,
	})
	poolStats := func() *db.PoolStats { return db.GetPoolStats(pool) }
	tp.RegisterPoolStats(poolStats)

	catalogSvc := catalog.NewService(catalog.NewServiceRepoPG(pool))
	catalogSvc.SetCache(store, cfg.CatalogCacheTTL)
	catalogSvc.SetMetrics(tp)

	directory := identity.NewDirectory(identity.NewPatientRepoPG(pool))
	billingSvc := billing.NewService(
		billing.NewBillingRepoPG(pool),
		billing.NewItemRepoPG(pool),
		directory,
		catalogSvc,
		db.NewTxManager(pool),
	)
	billingSvc.SetMetrics(tp)

	e := newRouter(deps{
		cfg:       cfg,
		logger:    logger,
		telemetry: tp,
		catalog:   catalogSvc,
		billing:   billingSvc,
		pinger:    pool,
		poolStats: poolStats,
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newRouter(d deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.ErrorHandler

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.SecurityHeaders(d.cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit(maxBodySize))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: d.cfg.RateLimitRPS,
		BurstSize:         d.cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	}))
	e.Use(d.telemetry.MetricsMiddleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(d.pinger, d.poolStats))
	e.GET("/metrics", d.telemetry.PrometheusHandler())

	apiV1 := e.Group("/api/v1")
	if d.cfg.AuthSigningKey == "" && d.cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     d.cfg.AuthIssuer,
			Audience:   d.cfg.AuthAudience,
			SigningKey: []byte(d.cfg.AuthSigningKey),
		}))
	}
	apiV1.Use(middleware.Audit(d.logger))

	catalog.NewHandler(d.catalog).RegisterRoutes(apiV1)
	billing.NewHandler(d.billing).RegisterRoutes(apiV1)

	return e
}
