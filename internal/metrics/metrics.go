// Package metrics exposes local-only Prometheus gauges/counters for one
// process's in-flight research runs, cache effectiveness, and per-engine
// search latency. Nothing here ships to an external collector: Registry
// is wired to a handler only when a caller explicitly asks for one
// (e.g. the CLI's optional --metrics-addr), keeping this squarely
// local-observability rather than a cloud monitoring integration.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every metric this process exports, each registered
// against its own prometheus.Registry so a caller can mount it under
// promhttp.HandlerFor without touching the global DefaultRegisterer.
type Registry struct {
	reg *prometheus.Registry

	ActiveRuns    prometheus.Gauge
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	SearchLatency *prometheus.HistogramVec
	ScrapeErrors  *prometheus.CounterVec
}

// NewRegistry constructs and registers the full metric set.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "deepresearch_active_runs",
			Help: "Number of research runs currently in progress.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deepresearch_cache_hits_total",
			Help: "Total page cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deepresearch_cache_misses_total",
			Help: "Total page cache misses.",
		}),
		SearchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deepresearch_search_latency_seconds",
			Help:    "Per-engine search request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"engine"}),
		ScrapeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deepresearch_scrape_errors_total",
			Help: "Scrape failures by reason (robots, rate_limit, fetch, too_short).",
		}, []string{"reason"}),
	}
	reg.MustRegister(r.ActiveRuns, r.CacheHits, r.CacheMisses, r.SearchLatency, r.ScrapeErrors)
	return r
}

// Gatherer exposes the underlying registry for a promhttp handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// CacheResult increments CacheHits or CacheMisses.
func (r *Registry) CacheResult(hit bool) {
	if hit {
		r.CacheHits.Inc()
	} else {
		r.CacheMisses.Inc()
	}
}

// ObserveSearch records how long one engine's Search call took.
func (r *Registry) ObserveSearch(engine string, d time.Duration) {
	r.SearchLatency.WithLabelValues(engine).Observe(d.Seconds())
}

// ObserveScrapeError records one scrape failure by coarse reason.
func (r *Registry) ObserveScrapeError(reason string) {
	r.ScrapeErrors.WithLabelValues(reason).Inc()
}
