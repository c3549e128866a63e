package fetch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for one crawl.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	ItemsTotal      *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	CacheHitsTotal  prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_request_duration_seconds",
			Help:    "HTTP request latency for crawler requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_items_total",
			Help: "Total books extracted and assets stored, by kind.",
		},
		[]string{"kind"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "Total crawler errors by type.",
		},
		[]string{"error_type"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_page_cache_hits_total",
			Help: "Detail-page fetches served from the in-memory cache.",
		},
	)

	registry.MustRegister(requests, requestDuration, items, errorsTotal, cacheHits)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		ItemsTotal:      items,
		ErrorsTotal:     errorsTotal,
		CacheHitsTotal:  cacheHits,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncItem increments the items counter for a kind label.
func (m *Metrics) IncItem(kind string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(kind).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCacheHit increments the page cache hit counter.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}
