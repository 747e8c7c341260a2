// Package metrics exposes Prometheus instrumentation for the tagging pipeline.
//
// All methods are safe on a nil *Collector, so components can be built
// without instrumentation in tests.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Veraticus/spendtag/internal/common"
)

const namespace = "spendtag"

// Collector owns a private registry and the pipeline's metrics.
type Collector struct {
	registry            *prometheus.Registry
	logger              *slog.Logger
	classifications     *prometheus.CounterVec
	tagWrites           *prometheus.CounterVec
	bulkItems           *prometheus.CounterVec
	anomaliesFlagged    *prometheus.CounterVec
	viewRefreshDuration prometheus.Histogram
	viewRefreshFailures prometheus.Counter
}

// NewCollector registers every metric on a fresh registry.
func NewCollector(logger *slog.Logger) *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		logger:   common.LoggerOrDefault(logger),
		classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Transactions classified, by resulting classification.",
		}, []string{"classification"}),
		tagWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tag_writes_total",
			Help:      "Tag upserts, by outcome.",
		}, []string{"outcome"}),
		bulkItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_items_total",
			Help:      "Items processed by bulk auto-tagging, by status.",
		}, []string{"status"}),
		anomaliesFlagged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_flagged_total",
			Help:      "Transactions flagged as anomalous, by sensitivity.",
		}, []string{"sensitivity"}),
		viewRefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "view_refresh_duration_seconds",
			Help:      "Time taken to compute an analytics view.",
			Buckets:   prometheus.DefBuckets,
		}),
		viewRefreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "view_refresh_failures_total",
			Help:      "Analytics view computations that failed.",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordClassification counts one classified transaction.
func (c *Collector) RecordClassification(classification string) {
	if c == nil {
		return
	}
	c.classifications.WithLabelValues(classification).Inc()
}

// RecordTagWrite counts one tag upsert outcome.
func (c *Collector) RecordTagWrite(outcome string) {
	if c == nil {
		return
	}
	c.tagWrites.WithLabelValues(outcome).Inc()
}

// RecordBulkItem counts one bulk item.
func (c *Collector) RecordBulkItem(success bool) {
	if c == nil {
		return
	}
	status := "succeeded"
	if !success {
		status = "failed"
	}
	c.bulkItems.WithLabelValues(status).Inc()
}

// RecordAnomalies counts flagged anomalies for one sensitivity.
func (c *Collector) RecordAnomalies(sensitivity string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.anomaliesFlagged.WithLabelValues(sensitivity).Add(float64(n))
}

// RecordViewRefresh observes one view computation.
func (c *Collector) RecordViewRefresh(duration time.Duration, success bool) {
	if c == nil {
		return
	}
	c.viewRefreshDuration.Observe(duration.Seconds())
	if !success {
		c.viewRefreshFailures.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr in the background.
func (c *Collector) StartServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		c.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

// Shutdown stops a server returned by StartServer.
func Shutdown(ctx context.Context, server *http.Server) error {
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
