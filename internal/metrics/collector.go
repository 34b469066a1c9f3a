package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of the cache core. It implements
// decorator.Recorder and reconcile.Recorder. A nil *Collector records
// nothing.
type Collector struct {
	registry *prometheus.Registry

	CacheResults *prometheus.CounterVec
	ViewsCounted *prometheus.CounterVec
	LockResults  *prometheus.CounterVec
	LockWaits    *prometheus.HistogramVec
	TaskRuns     *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates the metrics on a private registry under namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		CacheResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_results_total",
				Help:      "Cached reads by prefix and result (hit, miss, bypass, error)",
			},
			[]string{"prefix", "result"},
		),
		ViewsCounted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "views_counted_total",
				Help:      "View counter increments by prefix",
			},
			[]string{"prefix"},
		),
		LockResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_results_total",
				Help:      "Lock outcomes by lock name",
			},
			[]string{"lock", "result"},
		),
		LockWaits: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lock_wait_seconds",
				Help:      "Time spent acquiring locks",
				Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"lock"},
		),
		TaskRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_runs_total",
				Help:      "Reconciliation task runs by outcome",
			},
			[]string{"task", "outcome"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Reconciliation task duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	registry.MustRegister(
		c.CacheResults,
		c.ViewsCounted,
		c.LockResults,
		c.LockWaits,
		c.TaskRuns,
		c.TaskDuration,
		c.HTTPRequests,
		c.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) CacheResult(prefix, result string) {
	if c == nil {
		return
	}
	c.CacheResults.WithLabelValues(prefix, result).Inc()
}

func (c *Collector) ViewCounted(prefix string) {
	if c == nil {
		return
	}
	c.ViewsCounted.WithLabelValues(prefix).Inc()
}

func (c *Collector) LockResult(name, result string) {
	if c == nil {
		return
	}
	c.LockResults.WithLabelValues(name, result).Inc()
}

func (c *Collector) LockWait(name string, waited time.Duration) {
	if c == nil {
		return
	}
	c.LockWaits.WithLabelValues(name).Observe(waited.Seconds())
}

func (c *Collector) TaskRun(task, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.TaskRuns.WithLabelValues(task, outcome).Inc()
	c.TaskDuration.WithLabelValues(task).Observe(took.Seconds())
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, took time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
