// Package dedup implements the detection deduplication engine: a
// dual-policy, time-windowed decision function filtering a raw detection
// stream into a deduplicated storage stream and a rate-limited alert
// stream.
package dedup

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/sentinel/internal/cache"
	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/observability"
)

const lockShards = 64

// StorageDecision is the outcome of CheckStorage.
type StorageDecision struct {
	ShouldStore         bool   `json:"should_store"`
	Reason              Reason `json:"reason"`
	OriginalDetectionID string `json:"original_detection_id,omitempty"`
}

// AlertDecision is the outcome of CheckAlert.
type AlertDecision struct {
	ShouldAlert         bool   `json:"should_alert"`
	Reason              Reason `json:"reason"`
	OriginalDetectionID string `json:"original_detection_id,omitempty"`
	HourlyAlertCount    int64  `json:"hourly_alert_count,omitempty"`
}

// Engine owns both dedup policies and the windowed state behind them.
// Construct once at startup and share; safe for concurrent use. Calls
// for the same DetectionKey serialize on a striped lock so the
// read-decide-record sequence cannot interleave and under-deduplicate.
type Engine struct {
	cfg   config.DedupConfig
	cache *windowCache
	locks [lockShards]sync.Mutex
}

// New builds an engine over the given TTL store.
func New(store cache.Store, cfg config.DedupConfig) *Engine {
	opTimeout := time.Duration(cfg.CacheOpTimeoutMS) * time.Millisecond
	return &Engine{
		cfg:   cfg,
		cache: newWindowCache(store, cfg.RecentListCapacity, opTimeout),
	}
}

func (e *Engine) lockFor(key models.DetectionKey) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key.String()))
	return &e.locks[h.Sum32()%lockShards]
}

// CheckStorage decides whether the event becomes a new persisted record.
// On acceptance the storage window state is updated; rejection never
// mutates cache state. Cache failures fail open: losing a true watchlist
// sighting is worse than a duplicate record.
func (e *Engine) CheckStorage(ctx context.Context, ev models.DetectionEvent) StorageDecision {
	key := ev.Key()
	mu := e.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	params := policyParams{
		windowSeconds:         e.cfg.StorageWindowSeconds,
		spatialThreshold:      e.cfg.StorageSpatialThreshold,
		confidenceImprovement: e.cfg.StorageConfidenceThreshold,
	}

	v, err := e.runFilters(ctx, nsStorage, key, ev, params)
	if err != nil {
		return e.storageFallback(ev, err)
	}
	if !v.accept {
		observability.DetectionsDeduplicated.WithLabelValues("storage", string(v.reason)).Inc()
		return StorageDecision{ShouldStore: false, Reason: v.reason, OriginalDetectionID: v.originalID}
	}

	if err := e.recordForStorage(ctx, key, ev); err != nil {
		return e.storageFallback(ev, err)
	}
	return StorageDecision{ShouldStore: true, Reason: ReasonNewDetection}
}

// CheckAlert decides whether a user-facing alert fires for the event.
// Runs the same filter pipeline with the stricter alert policy, then the
// hourly rate limit. The counter is read before incrementing; the
// increment happens only once every other check has passed.
func (e *Engine) CheckAlert(ctx context.Context, ev models.DetectionEvent) AlertDecision {
	key := ev.Key()
	mu := e.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	params := policyParams{
		windowSeconds:         e.cfg.AlertWindowSeconds,
		spatialThreshold:      e.cfg.AlertSpatialThreshold,
		confidenceImprovement: e.cfg.AlertConfidenceImprovement,
	}

	v, err := e.runFilters(ctx, nsAlert, key, ev, params)
	if err != nil {
		return e.alertFallback(ev, err)
	}
	if !v.accept {
		observability.AlertsSuppressed.WithLabelValues(string(v.reason)).Inc()
		return AlertDecision{ShouldAlert: false, Reason: v.reason, OriginalDetectionID: v.originalID}
	}

	bucket := hourBucket(ev.Timestamp)
	count, err := e.cache.alertCount(ctx, key, bucket)
	if err != nil {
		return e.alertFallback(ev, err)
	}
	if count >= int64(e.cfg.MaxAlertsPerKeyPerHour) {
		observability.AlertsSuppressed.WithLabelValues(string(ReasonRateLimiting)).Inc()
		return AlertDecision{ShouldAlert: false, Reason: ReasonRateLimiting, HourlyAlertCount: count}
	}

	n, err := e.recordForAlerts(ctx, key, ev, bucket)
	if err != nil {
		return e.alertFallback(ev, err)
	}
	return AlertDecision{ShouldAlert: true, Reason: ReasonAllChecksPassed, HourlyAlertCount: n}
}

// recordForStorage books the accepted event into the storage window.
// TTLs run at twice the window so idle keys expire naturally and the
// next detection is treated as new.
func (e *Engine) recordForStorage(ctx context.Context, key models.DetectionKey, ev models.DetectionEvent) error {
	ttl := windowTTL(e.cfg.StorageWindowSeconds)

	if err := e.cache.appendBox(ctx, nsStorage, key, BoxEntry{
		BBox:        ev.BBox,
		Timestamp:   ev.Timestamp,
		Confidence:  ev.Confidence,
		DetectionID: ev.DetectionID,
	}, ttl); err != nil {
		return err
	}
	if err := e.cache.appendConfidence(ctx, nsStorage, key, ConfEntry{
		Confidence:  ev.Confidence,
		Timestamp:   ev.Timestamp,
		DetectionID: ev.DetectionID,
	}, ttl); err != nil {
		return err
	}
	return e.cache.setMarker(ctx, nsStorage, key, Marker{
		Timestamp:   ev.Timestamp,
		DetectionID: ev.DetectionID,
	}, ttl)
}

// recordForAlerts books the accepted event into the alert window and
// bumps the hourly counter, returning the post-increment count.
func (e *Engine) recordForAlerts(ctx context.Context, key models.DetectionKey, ev models.DetectionEvent, bucket int64) (int64, error) {
	ttl := windowTTL(e.cfg.AlertWindowSeconds)

	if err := e.cache.appendBox(ctx, nsAlert, key, BoxEntry{
		BBox:        ev.BBox,
		Timestamp:   ev.Timestamp,
		Confidence:  ev.Confidence,
		DetectionID: ev.DetectionID,
	}, ttl); err != nil {
		return 0, err
	}
	if err := e.cache.appendConfidence(ctx, nsAlert, key, ConfEntry{
		Confidence:  ev.Confidence,
		Timestamp:   ev.Timestamp,
		DetectionID: ev.DetectionID,
	}, ttl); err != nil {
		return 0, err
	}
	if err := e.cache.setMarker(ctx, nsAlert, key, Marker{
		Timestamp:   ev.Timestamp,
		DetectionID: ev.DetectionID,
	}, ttl); err != nil {
		return 0, err
	}
	return e.cache.incrementAlertCount(ctx, key, bucket)
}

func (e *Engine) storageFallback(ev models.DetectionEvent, err error) StorageDecision {
	slog.Warn("storage dedup check failed, failing open",
		"target_id", ev.TargetID,
		"camera_id", ev.CameraID,
		"detection_id", ev.DetectionID,
		"error", err,
	)
	observability.DedupFallbacks.WithLabelValues("storage").Inc()
	return StorageDecision{ShouldStore: true, Reason: ReasonErrorFallback}
}

func (e *Engine) alertFallback(ev models.DetectionEvent, err error) AlertDecision {
	slog.Warn("alert dedup check failed, failing open",
		"target_id", ev.TargetID,
		"camera_id", ev.CameraID,
		"detection_id", ev.DetectionID,
		"error", err,
	)
	observability.DedupFallbacks.WithLabelValues("alert").Inc()
	return AlertDecision{ShouldAlert: true, Reason: ReasonErrorFallback}
}

func hourBucket(ts float64) int64 {
	return int64(ts) / 3600
}

func windowTTL(windowSeconds float64) time.Duration {
	return time.Duration(2 * windowSeconds * float64(time.Second))
}
