package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/your-org/sentinel/internal/cache"
	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/observability"
)

// Policy namespaces. Each dedup policy owns its marker and recent lists;
// entries are written only by that policy's record step so one policy's
// bookkeeping never trips the other's filters.
const (
	nsStorage = "st"
	nsAlert   = "al"
)

// Marker is the last accepted detection (or alert) for a key.
type Marker struct {
	Timestamp   float64 `json:"ts"`
	DetectionID string  `json:"id"`
}

// BoxEntry is one cached bounding box in a key's recent-box window.
type BoxEntry struct {
	BBox        models.BoundingBox `json:"bbox"`
	Timestamp   float64            `json:"ts"`
	Confidence  float64            `json:"conf"`
	DetectionID string             `json:"id"`
}

// ConfEntry is one cached confidence in a key's recent-confidence window.
type ConfEntry struct {
	Confidence  float64 `json:"conf"`
	Timestamp   float64 `json:"ts"`
	DetectionID string  `json:"id"`
}

// windowCache is the typed adapter over the TTL store. All operations
// carry a short timeout; callers treat any error as grounds to fail open.
type windowCache struct {
	store     cache.Store
	capacity  int
	opTimeout time.Duration
}

func newWindowCache(store cache.Store, capacity int, opTimeout time.Duration) *windowCache {
	return &windowCache{store: store, capacity: capacity, opTimeout: opTimeout}
}

func markerKey(ns string, key models.DetectionKey) string {
	return "dedup:" + ns + ":last:" + key.String()
}

func boxesKey(ns string, key models.DetectionKey) string {
	return "dedup:" + ns + ":boxes:" + key.String()
}

func confsKey(ns string, key models.DetectionKey) string {
	return "dedup:" + ns + ":confs:" + key.String()
}

func counterKey(key models.DetectionKey, bucket int64) string {
	return fmt.Sprintf("dedup:alerts:%s:%d", key.String(), bucket)
}

func (c *windowCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

func (c *windowCache) marker(ctx context.Context, ns string, key models.DetectionKey) (*Marker, error) {
	var m Marker
	ok, err := c.getJSON(ctx, markerKey(ns, key), &m)
	if err != nil || !ok {
		return nil, err
	}
	return &m, nil
}

func (c *windowCache) setMarker(ctx context.Context, ns string, key models.DetectionKey, m Marker, ttl time.Duration) error {
	return c.setJSON(ctx, markerKey(ns, key), m, ttl)
}

func (c *windowCache) boxes(ctx context.Context, ns string, key models.DetectionKey) ([]BoxEntry, error) {
	var list []BoxEntry
	if _, err := c.getJSON(ctx, boxesKey(ns, key), &list); err != nil {
		return nil, err
	}
	return list, nil
}

// appendBox appends the entry, evicting oldest-first past capacity.
func (c *windowCache) appendBox(ctx context.Context, ns string, key models.DetectionKey, e BoxEntry, ttl time.Duration) error {
	list, err := c.boxes(ctx, ns, key)
	if err != nil {
		return err
	}
	list = append(list, e)
	if len(list) > c.capacity {
		list = list[len(list)-c.capacity:]
	}
	return c.setJSON(ctx, boxesKey(ns, key), list, ttl)
}

func (c *windowCache) confidences(ctx context.Context, ns string, key models.DetectionKey) ([]ConfEntry, error) {
	var list []ConfEntry
	if _, err := c.getJSON(ctx, confsKey(ns, key), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *windowCache) appendConfidence(ctx context.Context, ns string, key models.DetectionKey, e ConfEntry, ttl time.Duration) error {
	list, err := c.confidences(ctx, ns, key)
	if err != nil {
		return err
	}
	list = append(list, e)
	if len(list) > c.capacity {
		list = list[len(list)-c.capacity:]
	}
	return c.setJSON(ctx, confsKey(ns, key), list, ttl)
}

// alertCount reads the hourly alert counter without incrementing it.
func (c *windowCache) alertCount(ctx context.Context, key models.DetectionKey, bucket int64) (int64, error) {
	// Increment stores counters as 8-byte big-endian, so a plain Get
	// reads the current count without bumping it.
	opCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	raw, err := c.store.Get(opCtx, counterKey(key, bucket))
	observability.CacheOpDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	if errors.Is(err, cache.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeCounter(raw), nil
}

// incrementAlertCount atomically bumps the hourly counter, starting the
// 1-hour TTL on first increment.
func (c *windowCache) incrementAlertCount(ctx context.Context, key models.DetectionKey, bucket int64) (int64, error) {
	opCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	n, err := c.store.Increment(opCtx, counterKey(key, bucket), time.Hour)
	observability.CacheOpDuration.WithLabelValues("increment").Observe(time.Since(start).Seconds())
	return n, err
}

func decodeCounter(raw []byte) int64 {
	if len(raw) != 8 {
		return 0
	}
	var n int64
	for _, b := range raw {
		n = n<<8 | int64(b)
	}
	return n
}

func (c *windowCache) getJSON(ctx context.Context, key string, out any) (bool, error) {
	opCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	raw, err := c.store.Get(opCtx, key)
	observability.CacheOpDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	if errors.Is(err, cache.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	return true, nil
}

func (c *windowCache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}

	opCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	err = c.store.Set(opCtx, key, raw, ttl)
	observability.CacheOpDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}
