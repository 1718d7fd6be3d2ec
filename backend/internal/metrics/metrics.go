package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricCacheLookups    = "cache_lookups_total"
	MetricRenderSeconds   = "render_duration_seconds"
	MetricInvalidations   = "invalidations_total"
	MetricDocumentsServed = "documents_served_total"
)

// Cache lookup results.
const (
	CacheHit         = "hit"
	CacheMiss        = "miss"
	CacheError       = "error"
	CacheUnavailable = "unavailable"
)

var CounterCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sitemap",
		Name:      MetricCacheLookups,
		Help:      "Origin cache lookups by result.",
	},
	[]string{
		"result",
	},
)

var HistogramRender = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "sitemap",
		Name:      MetricRenderSeconds,
		Help:      "Time spent collecting and rendering one route.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{
		"route",
	},
)

var CounterInvalidations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sitemap",
		Name:      MetricInvalidations,
		Help:      "Site invalidations by trigger.",
	},
	[]string{
		"source",
	},
)

var CounterDocumentsServed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "sitemap",
		Name:      MetricDocumentsServed,
		Help:      "Documents served by variant and status code.",
	},
	[]string{
		"variant",
		"status",
	},
)

func init() {
	prometheus.MustRegister(CounterCacheLookups)
	prometheus.MustRegister(HistogramRender)
	prometheus.MustRegister(CounterInvalidations)
	prometheus.MustRegister(CounterDocumentsServed)
}
