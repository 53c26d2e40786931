package dto

import (
	"github.com/google/uuid"

	"github.com/your-org/sentinel/internal/models"
)

// IngestRequest is the body of POST /v1/detections.
type IngestRequest struct {
	DetectionID string             `json:"detection_id"`
	TargetID    string             `json:"target_id" binding:"required"`
	CameraID    string             `json:"camera_id" binding:"required"`
	UserID      string             `json:"user_id" binding:"required"`
	Timestamp   float64            `json:"timestamp" binding:"required"`
	Confidence  float64            `json:"confidence"`
	BBox        models.BoundingBox `json:"bounding_box"`
	Embedding   []float32          `json:"embedding,omitempty"`
	// Snapshot is an optional base64-encoded JPEG of the matched face.
	Snapshot string `json:"snapshot,omitempty"`
}

// IngestResponse reports both dedup decisions for one ingested event.
type IngestResponse struct {
	Detection DetectionResponse `json:"detection"`
	Storage   DecisionResponse  `json:"storage"`
	Alert     *DecisionResponse `json:"alert,omitempty"` // absent when the alert check was skipped
}

// DecisionResponse is the wire form of a dedup decision.
type DecisionResponse struct {
	Accepted            bool   `json:"accepted"`
	Reason              string `json:"reason"`
	OriginalDetectionID string `json:"original_detection_id,omitempty"`
}

type DetectionResponse struct {
	ID           uuid.UUID          `json:"id"`
	DetectionID  string             `json:"detection_id"`
	TargetID     string             `json:"target_id"`
	CameraID     string             `json:"camera_id"`
	UserID       string             `json:"user_id"`
	Timestamp    string             `json:"timestamp"`
	Confidence   float64            `json:"confidence"`
	BBox         models.BoundingBox `json:"bounding_box"`
	SnapshotURL  string             `json:"snapshot_url,omitempty"`
	IsDuplicate  bool               `json:"is_duplicate"`
	DuplicateOf  *string            `json:"duplicate_of,omitempty"`
	DedupReason  string             `json:"dedup_reason,omitempty"`
	AlertCreated bool               `json:"alert_created"`
	AlertedAt    string             `json:"alerted_at,omitempty"`
	CreatedAt    string             `json:"created_at"`
}

type DetectionListResponse struct {
	Detections []DetectionResponse `json:"detections"`
	Total      int                 `json:"total"`
}

// WSEvent is a WebSocket message for real-time delivery.
type WSEvent struct {
	Type   string `json:"type"` // alert_dispatched
	UserID string `json:"user_id"`
	Data   any    `json:"data,omitempty"`
}
