package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered on the default registry at init and served by
// the HTTP server's /metrics endpoint.
var (
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotradar_upstream_requests_total",
			Help: "YouTube Data API calls, by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	KeyRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotradar_key_rotations_total",
		Help: "API key rotations triggered by quota exhaustion.",
	})

	KeyPoolExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotradar_key_pool_exhausted_total",
		Help: "Calls that failed because every API key was over quota.",
	})

	IncompleteBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotradar_incomplete_batches_total",
		Help: "Channel statistics batches that failed and were omitted from a run.",
	})

	EnrichmentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotradar_enrichment_failures_total",
		Help: "Channels kept with no recent videos because every upload lookup failed.",
	})

	FeedFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotradar_feed_fallbacks_total",
		Help: "Recent-upload lookups served by the channel feed instead of the API.",
	})

	SnapshotLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotradar_snapshot_lookups_total",
			Help: "Snapshot cache lookups, by result (hit_l1, hit_l2, miss).",
		},
		[]string{"result"},
	)

	SnapshotRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotradar_snapshot_refreshes_total",
			Help: "Snapshot rebuilds, by outcome.",
		},
		[]string{"outcome"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hotradar_discovery_run_duration_seconds",
			Help:    "Duration of a discovery run, by content type.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"content_type"},
	)

	ChannelsDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hotradar_channels_discovered_total",
			Help: "Channels that met the hot-score threshold, by content type.",
		},
		[]string{"content_type"},
	)
)
