// Package intake is the integration point between arriving detection
// events and the dedup engine: validate, check storage, persist or link
// as duplicate, check alert, dispatch.
package intake

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/sentinel/internal/alert"
	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/dedup"
	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/observability"
)

// RecordStore persists detection records.
type RecordStore interface {
	CreateDetection(ctx context.Context, d *models.Detection) error
}

// Result reports what happened to one processed detection.
type Result struct {
	Record  *models.Detection
	Storage dedup.StorageDecision
	Alert   dedup.AlertDecision
	// AlertChecked is false when the alert check was skipped for a
	// duplicate (alert_check_after_duplicate disabled).
	AlertChecked bool
}

// Handler drives each detection through the intake state machine:
// Received → StorageChecked → (Stored | MarkedDuplicate) →
// AlertChecked → (AlertDispatched | Suppressed) → Done. Terminal in all
// branches; retries belong to the upstream transport.
type Handler struct {
	engine     *dedup.Engine
	store      RecordStore
	dispatcher alert.Dispatcher
	cfg        config.DedupConfig
}

func NewHandler(engine *dedup.Engine, store RecordStore, dispatcher alert.Dispatcher, cfg config.DedupConfig) *Handler {
	return &Handler{engine: engine, store: store, dispatcher: dispatcher, cfg: cfg}
}

// Process runs one detection event through both dedup policies and the
// persistence/dispatch side effects. Validation errors are returned to
// the caller; dispatch failures are logged and non-fatal.
func (h *Handler) Process(ctx context.Context, ev models.DetectionEvent) (*Result, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if ev.DetectionID == "" {
		ev.DetectionID = uuid.NewString()
	}

	observability.DetectionsIngested.WithLabelValues(ev.CameraID).Inc()

	storageDecision := h.engine.CheckStorage(ctx, ev)

	record := recordFromEvent(ev)
	if !storageDecision.ShouldStore {
		record.IsDuplicate = true
		record.DedupReason = string(storageDecision.Reason)
		if storageDecision.OriginalDetectionID != "" {
			orig := storageDecision.OriginalDetectionID
			record.DuplicateOf = &orig
		}
	}

	result := &Result{Record: record, Storage: storageDecision}

	// The alert check runs even for storage duplicates unless disabled:
	// the alert policy reads its own window state, so a storage-level
	// near-duplicate can still be a fresh sighting alert-wise.
	if storageDecision.ShouldStore || h.cfg.AlertAfterDuplicate() {
		result.AlertChecked = true
		result.Alert = h.engine.CheckAlert(ctx, ev)
	}

	if result.Alert.ShouldAlert {
		now := time.Now()
		record.AlertCreated = true
		record.AlertedAt = &now
	}

	if err := h.store.CreateDetection(ctx, record); err != nil {
		return result, fmt.Errorf("persist detection %s: %w", ev.DetectionID, err)
	}

	if result.Alert.ShouldAlert {
		n := alert.Notification{
			Recipient:   ev.UserID,
			Actor:       ev.CameraID,
			Verb:        "detected",
			Target:      ev.TargetID,
			Description: fmt.Sprintf("watchlisted target %s detected on camera %s", ev.TargetID, ev.CameraID),
			DetectionID: ev.DetectionID,
			Timestamp:   time.Now(),
		}
		if err := h.dispatcher.Dispatch(ctx, n); err != nil {
			// Non-fatal: the record and storage decision stand.
			slog.Error("dispatch alert",
				"detection_id", ev.DetectionID,
				"target_id", ev.TargetID,
				"error", err,
			)
		} else {
			observability.AlertsDispatched.Inc()
		}
	}

	return result, nil
}

func recordFromEvent(ev models.DetectionEvent) *models.Detection {
	sec := int64(ev.Timestamp)
	nsec := int64((ev.Timestamp - float64(sec)) * float64(time.Second))
	return &models.Detection{
		DetectionID: ev.DetectionID,
		TargetID:    ev.TargetID,
		CameraID:    ev.CameraID,
		UserID:      ev.UserID,
		Timestamp:   time.Unix(sec, nsec).UTC(),
		Confidence:  ev.Confidence,
		BBox:        ev.BBox,
		Embedding:   ev.Embedding,
		SnapshotKey: ev.SnapshotKey,
	}
}
