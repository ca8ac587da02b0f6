// Package metrics exposes engine and HTTP metrics to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anyx/sales-engine/sales"
)

const namespace = "sales"

// Collector implements sales.Observer on top of Prometheus counters.
type Collector struct {
	registry *prometheus.Registry

	paymentsCreated *prometheus.CounterVec
	storageAttempts *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers all metrics on a fresh registry, plus the Go and process
// collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		paymentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_created_total",
			Help:      "Payments persisted, by payment method.",
		}, []string{"method"}),
		storageAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_attempts_total",
			Help:      "Storage calls, by operation and outcome.",
		}, []string{"op", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statement_cache_lookups_total",
			Help:      "Sales statement cache lookups, by result.",
		}, []string{"result"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed operations, by operation and error kind.",
		}, []string{"op", "kind"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}

	c.registry.MustRegister(
		c.paymentsCreated,
		c.storageAttempts,
		c.cacheLookups,
		c.rejections,
		c.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// =============================================================================
// sales.Observer
// =============================================================================

func (c *Collector) StorageAttempt(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.storageAttempts.WithLabelValues(op, outcome).Inc()
}

func (c *Collector) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

func (c *Collector) PaymentCreated(method sales.PaymentMethod) {
	c.paymentsCreated.WithLabelValues(string(method)).Inc()
}

func (c *Collector) Rejected(op string, kind sales.Kind) {
	c.rejections.WithLabelValues(op, string(kind)).Inc()
}

// =============================================================================
// HTTP MIDDLEWARE
// =============================================================================

// Middleware records request latency labelled by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

var _ sales.Observer = (*Collector)(nil)
