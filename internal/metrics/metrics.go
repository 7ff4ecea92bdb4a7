package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbcache_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Pipeline metrics
var (
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"format", "status"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thumbcache_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"format"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_cache_hits_total",
			Help: "Total number of thumbnail cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_cache_misses_total",
			Help: "Total number of thumbnail cache misses",
		},
	)

	TranscodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_transcodes_total",
			Help: "Total number of WebP transcodes",
		},
		[]string{"status"},
	)

	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_flushes_total",
			Help: "Total number of cache flushes",
		},
		[]string{"scope"}, // "all" or "source"
	)
)

// Cache directory metrics, updated by the Collector
var (
	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_cache_size_bytes",
			Help: "Total size of the thumbnail cache in bytes",
		},
	)

	CacheEntryCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_cache_entries",
			Help: "Number of entries in the thumbnail cache",
		},
	)
)

// Source watcher metrics
var (
	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thumbcache_watcher_events_total",
			Help: "Total number of source directory filesystem events",
		},
		[]string{"type"},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thumbcache_watched_directories",
			Help: "Number of source directories currently watched",
		},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thumbcache_watcher_errors_total",
			Help: "Total number of source watcher errors",
		},
	)
)

// InitializeMetrics pre-populates expected label combinations so every
// metric is exported from the first Prometheus scrape. Call once at
// startup.
func InitializeMetrics() {
	for _, format := range []string{"jpeg", "png"} {
		for _, status := range []string{"success", "error"} {
			GenerationsTotal.WithLabelValues(format, status)
		}
		GenerationDuration.WithLabelValues(format)
	}
	for _, status := range []string{"success", "error"} {
		TranscodesTotal.WithLabelValues(status)
	}
	for _, scope := range []string{"all", "source"} {
		FlushesTotal.WithLabelValues(scope)
	}
	for _, event := range []string{"create", "write", "remove", "rename", "chmod", "unknown"} {
		WatcherEventsTotal.WithLabelValues(event)
	}
}
