package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DetectionsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "detections_ingested_total",
		Help:      "Total number of detection events ingested",
	}, []string{"camera_id"})

	DetectionsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "detections_deduplicated_total",
		Help:      "Total number of detections rejected by a dedup policy",
	}, []string{"policy", "reason"})

	AlertsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "alerts_dispatched_total",
		Help:      "Total number of watchlist alerts dispatched",
	})

	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "alerts_suppressed_total",
		Help:      "Total number of alerts suppressed by the alert policy",
	}, []string{"reason"})

	DedupFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "dedup_fallbacks_total",
		Help:      "Total number of fail-open decisions due to cache errors",
	}, []string{"policy"})

	CacheOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Name:      "cache_op_duration_seconds",
		Help:      "Duration of dedup cache operations",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
	}, []string{"op"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "queue_depth",
		Help:      "Number of pending detection events in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sentinel",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
