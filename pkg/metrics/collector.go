// Package metrics provides the Prometheus implementation of the cache
// metrics sink.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents metrics collector configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
}

// Collector feeds cache operation telemetry into Prometheus. It
// implements types.MetricsSink: one counter for operation totals and
// one histogram for operation latency.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	operationCounter *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec

	server *http.Server
}

// NewCollector creates a new metrics collector with a private registry
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Namespace: "tiercache",
			Port:      9090,
			Path:      "/metrics",
		}
	}
	if config.Namespace == "" {
		config.Namespace = "tiercache"
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}

	c := &Collector{
		config:   config,
		registry: prometheus.NewRegistry(),
	}
	if !config.Enabled {
		return c, nil
	}

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	c.operationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "cache_operation_latency_ms",
			Help:      "Cache operation latency in milliseconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"operation"},
	)

	if err := c.registry.Register(c.operationCounter); err != nil {
		return nil, fmt.Errorf("failed to register operation counter: %w", err)
	}
	if err := c.registry.Register(c.operationLatency); err != nil {
		return nil, fmt.Errorf("failed to register latency histogram: %w", err)
	}

	return c, nil
}

// RecordOperation implements types.MetricsSink
func (c *Collector) RecordOperation(operation string, duration time.Duration, success bool) {
	if c.operationCounter == nil {
		return
	}

	status := "success"
	if !success {
		status = "error"
	}
	c.operationCounter.WithLabelValues(operation, status).Inc()
	c.operationLatency.WithLabelValues(operation).Observe(float64(duration.Microseconds()) / 1000.0)
}

// Handler returns the exposition handler for the collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for callers that register
// additional collectors alongside the cache metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// StartServer begins serving the metrics endpoint on the configured port
func (c *Collector) StartServer() error {
	if !c.config.Enabled || c.config.Port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, c.Handler())

	c.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", c.config.Port),
		Handler: mux,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// The endpoint is an operational convenience; a bind
			// failure must not take the cache down.
			_ = err
		}
	}()

	return nil
}

// Shutdown stops the metrics endpoint
func (c *Collector) Shutdown(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}
