package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BoundingBox is an axis-aligned face box in source-pixel (or normalized)
// units. Units must be consistent within one camera.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// IsZero reports whether the box carries no usable area. Upstream
// pipelines may omit the box entirely, which degrades the spatial
// dedup filter to always-accept.
func (b BoundingBox) IsZero() bool {
	return b.W <= 0 || b.H <= 0
}

// DetectionEvent is one face-detection event as delivered by an upstream
// video-analytics pipeline. Immutable once constructed.
type DetectionEvent struct {
	DetectionID string      `json:"detection_id"`
	TargetID    string      `json:"target_id"`
	CameraID    string      `json:"camera_id"`
	UserID      string      `json:"user_id"`
	Timestamp   float64     `json:"timestamp"` // unix seconds
	Confidence  float64     `json:"confidence"`
	BBox        BoundingBox `json:"bounding_box"`
	Embedding   []float32   `json:"embedding,omitempty"` // precomputed upstream
	SnapshotKey string      `json:"snapshot_key,omitempty"`
}

// Key returns the deduplication scope of the event.
func (e DetectionEvent) Key() DetectionKey {
	return DetectionKey{TargetID: e.TargetID, CameraID: e.CameraID, UserID: e.UserID}
}

// Validate rejects malformed events before they reach the dedup engine.
// Validation errors surface to the caller; they never fail open.
func (e DetectionEvent) Validate() error {
	if e.TargetID == "" {
		return fmt.Errorf("%w: target_id is required", ErrInvalidEvent)
	}
	if e.CameraID == "" {
		return fmt.Errorf("%w: camera_id is required", ErrInvalidEvent)
	}
	if e.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidEvent)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp must be positive", ErrInvalidEvent)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidEvent, e.Confidence)
	}
	if e.BBox.X < 0 || e.BBox.Y < 0 || e.BBox.W < 0 || e.BBox.H < 0 {
		return fmt.Errorf("%w: bounding box has negative component", ErrInvalidEvent)
	}
	return nil
}

// ErrInvalidEvent marks validation failures on incoming events.
var ErrInvalidEvent = fmt.Errorf("invalid detection event")

// DetectionKey scopes all windowed dedup state. Detections for different
// keys never interact.
type DetectionKey struct {
	TargetID string
	CameraID string
	UserID   string
}

func (k DetectionKey) String() string {
	return k.TargetID + "|" + k.CameraID + "|" + k.UserID
}

// Detection is the persisted record produced for every ingested event,
// duplicate or not.
type Detection struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	DetectionID  string      `json:"detection_id" db:"detection_id"`
	TargetID     string      `json:"target_id" db:"target_id"`
	CameraID     string      `json:"camera_id" db:"camera_id"`
	UserID       string      `json:"user_id" db:"user_id"`
	Timestamp    time.Time   `json:"timestamp" db:"timestamp"`
	Confidence   float64     `json:"confidence" db:"confidence"`
	BBox         BoundingBox `json:"bounding_box" db:"-"`
	Embedding    []float32   `json:"-" db:"embedding"`
	SnapshotKey  string      `json:"snapshot_key,omitempty" db:"snapshot_key"`
	IsDuplicate  bool        `json:"is_duplicate" db:"is_duplicate"`
	DuplicateOf  *string     `json:"duplicate_of,omitempty" db:"duplicate_of"`
	DedupReason  string      `json:"dedup_reason,omitempty" db:"dedup_reason"`
	AlertCreated bool        `json:"alert_created" db:"alert_created"`
	AlertedAt    *time.Time  `json:"alerted_at,omitempty" db:"alerted_at"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}
