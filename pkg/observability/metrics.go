package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// DescriptorLookupsTotal counts descriptor cache lookups
	DescriptorLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partcache_descriptor_lookups_total",
			Help: "Total number of partition descriptor lookups",
		},
		[]string{"result"}, // result: hit, miss
	)

	// DescriptorRefreshTotal counts descriptor rebuilds
	DescriptorRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partcache_descriptor_refresh_total",
			Help: "Total number of partition descriptor rebuilds",
		},
		[]string{"part_type", "status"}, // status: success, failed, incomplete
	)

	// DescriptorRefreshDuration measures descriptor rebuild duration in seconds
	DescriptorRefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partcache_descriptor_refresh_duration_seconds",
			Help:    "Partition descriptor rebuild duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us to ~26s
		},
		[]string{"part_type"},
	)

	// DescriptorsCached tracks the number of published descriptors
	DescriptorsCached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partcache_descriptors_cached",
			Help: "Number of published partition descriptors",
		},
	)

	// DescriptorsPinnedStale tracks invalidated descriptors still referenced by readers
	DescriptorsPinnedStale = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partcache_descriptors_pinned_stale",
			Help: "Number of invalidated descriptors waiting for their last release",
		},
	)

	// InvalidationsTotal counts invalidations by mode
	InvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partcache_invalidations_total",
			Help: "Total number of invalidations handled",
		},
		[]string{"kind", "mode"}, // mode: immediate, delayed
	)

	// DelayedQueueDepth tracks the number of queued invalidation commands
	DelayedQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partcache_delayed_queue_depth",
			Help: "Number of invalidation commands waiting for a safe point",
		},
	)

	// ParentLookupsTotal counts parent-link lookups by search result
	ParentLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partcache_parent_lookups_total",
			Help: "Total number of parent-link lookups",
		},
		[]string{"source", "result"}, // source: cache, catalog
	)

	// BoundsCacheHits counts bounds cache hits
	BoundsCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partcache_bounds_cache_hits_total",
			Help: "Total number of bounds cache hits",
		},
	)

	// BoundsCacheMisses counts bounds cache misses
	BoundsCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partcache_bounds_cache_misses_total",
			Help: "Total number of bounds cache misses",
		},
	)

	// NotificationsReceivedTotal counts catalog change notifications received from transports
	NotificationsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partcache_notifications_received_total",
			Help: "Total number of catalog change notifications received",
		},
		[]string{"kind", "status"}, // status: accepted, dropped, invalid
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partcache_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordDescriptorHit records a descriptor cache hit
func RecordDescriptorHit() {
	DescriptorLookupsTotal.WithLabelValues("hit").Inc()
}

// RecordDescriptorMiss records a descriptor cache miss
func RecordDescriptorMiss() {
	DescriptorLookupsTotal.WithLabelValues("miss").Inc()
}

// RecordRefresh records the outcome and duration of a descriptor rebuild
func RecordRefresh(partType, status string, duration float64) {
	DescriptorRefreshTotal.WithLabelValues(partType, status).Inc()
	DescriptorRefreshDuration.WithLabelValues(partType).Observe(duration)
}

// RecordInvalidation records an invalidation of the given kind
func RecordInvalidation(kind, mode string) {
	InvalidationsTotal.WithLabelValues(kind, mode).Inc()
}

// RecordParentLookup records a parent-link lookup
func RecordParentLookup(source, result string) {
	ParentLookupsTotal.WithLabelValues(source, result).Inc()
}

// RecordBoundsCacheHit records a bounds cache hit
func RecordBoundsCacheHit() {
	BoundsCacheHits.Inc()
}

// RecordBoundsCacheMiss records a bounds cache miss
func RecordBoundsCacheMiss() {
	BoundsCacheMisses.Inc()
}

// RecordNotification records a notification received from a transport
func RecordNotification(kind, status string) {
	NotificationsReceivedTotal.WithLabelValues(kind, status).Inc()
}

// RecordError records an error occurrence
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
