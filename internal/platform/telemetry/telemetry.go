// Package telemetry exposes Prometheus metrics for the billing service:
// HTTP server histograms, database pool gauges, and billing finalization
// outcomes. Everything is registered on a private registry so tests can
// build independent providers.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinic/clinic/internal/platform/db"
)

// TelemetryConfig holds provider options.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// MetricsEnabled nil means enabled.
	MetricsEnabled *bool
	// IncludeRuntime registers the Go runtime and process collectors.
	IncludeRuntime bool
}

func (c *TelemetryConfig) metricsOn() bool {
	return c.MetricsEnabled == nil || *c.MetricsEnabled
}

func (c *TelemetryConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "clinic-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// BoolPtr is a helper to create a *bool for TelemetryConfig fields.
func BoolPtr(b bool) *bool {
	return &b
}

// Finalization outcomes recorded by RecordFinalization.
const (
	OutcomeFinalized    = "finalized"
	OutcomeInvalidState = "invalid_state"
	OutcomeConflict     = "conflict"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
)

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// TelemetryProvider owns the registry and every collector on it.
type TelemetryProvider struct {
	cfg      TelemetryConfig
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	activeRequests  prometheus.Gauge
	finalizations   *prometheus.CounterVec
	catalogCache    *prometheus.CounterVec
}

func NewTelemetryProvider(cfg TelemetryConfig) *TelemetryProvider {
	cfg.applyDefaults()
	reg := prometheus.NewRegistry()

	constLabels := prometheus.Labels{"service": cfg.ServiceName, "env": cfg.Environment}
	tp := &TelemetryProvider{
		cfg:      cfg,
		registry: reg,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "clinic",
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "HTTP request latency by method, route and status.",
			Buckets:     durationBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "clinic",
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "HTTP requests by method, route and status.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "clinic",
			Subsystem:   "http",
			Name:        "active_requests",
			Help:        "Requests currently being served.",
			ConstLabels: constLabels,
		}),
		finalizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "clinic",
			Subsystem:   "billing",
			Name:        "finalizations_total",
			Help:        "Finalization attempts by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		catalogCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "clinic",
			Subsystem:   "catalog",
			Name:        "cache_lookups_total",
			Help:        "Billing service cache lookups by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
	}

	reg.MustRegister(tp.requestDuration, tp.requestsTotal, tp.activeRequests, tp.finalizations, tp.catalogCache)
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "clinic",
		Name:        "build_info",
		Help:        "Always 1; labels carry the build version.",
		ConstLabels: prometheus.Labels{"service": cfg.ServiceName, "version": cfg.ServiceVersion},
	}, func() float64 { return 1 }))

	if cfg.IncludeRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return tp
}

// Registry exposes the underlying registry, mainly for tests.
func (tp *TelemetryProvider) Registry() *prometheus.Registry { return tp.registry }

// RecordFinalization counts one finalize attempt.
func (tp *TelemetryProvider) RecordFinalization(outcome string) {
	tp.finalizations.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts a catalog cache hit or miss.
func (tp *TelemetryProvider) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	tp.catalogCache.WithLabelValues(result).Inc()
}

// RegisterPoolStats publishes database pool gauges sampled on scrape.
func (tp *TelemetryProvider) RegisterPoolStats(stats func() *db.PoolStats) {
	gauge := func(name, help string, pick func(*db.PoolStats) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 {
			s := stats()
			if s == nil {
				return 0
			}
			return float64(pick(s))
		})
	}
	tp.registry.MustRegister(
		gauge("total_conns", "Connections currently in the pool.", func(s *db.PoolStats) int32 { return s.TotalConns }),
		gauge("idle_conns", "Idle connections.", func(s *db.PoolStats) int32 { return s.IdleConns }),
		gauge("acquired_conns", "Connections checked out.", func(s *db.PoolStats) int32 { return s.AcquiredConns }),
		gauge("max_conns", "Configured pool size.", func(s *db.PoolStats) int32 { return s.MaxConns }),
	)
}

// MetricsMiddleware records latency and counts per route pattern.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.metricsOn() {
				return next(c)
			}

			tp.activeRequests.Inc()
			defer tp.activeRequests.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			// Route pattern, not the raw path, to keep cardinality bounded.
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			labels := []string{c.Request().Method, route, strconv.Itoa(status)}
			tp.requestsTotal.WithLabelValues(labels...).Inc()
			tp.requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// PrometheusHandler serves the registry in text exposition format.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{}))
}
