package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/sentinel/internal/intake"
	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/queue"
	"github.com/your-org/sentinel/internal/storage"
	"github.com/your-org/sentinel/pkg/dto"
)

type DetectionHandler struct {
	intake   *intake.Handler
	db       *storage.PostgresStore
	minio    *storage.MinIOStore
	producer *queue.Producer
}

func NewDetectionHandler(intakeHandler *intake.Handler, db *storage.PostgresStore, minio *storage.MinIOStore, producer *queue.Producer) *DetectionHandler {
	return &DetectionHandler{intake: intakeHandler, db: db, minio: minio, producer: producer}
}

// Ingest accepts one detection event from an upstream analytics pipeline
// and runs it through the dedup engine.
func (h *DetectionHandler) Ingest(c *gin.Context) {
	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev := models.DetectionEvent{
		DetectionID: req.DetectionID,
		TargetID:    req.TargetID,
		CameraID:    req.CameraID,
		UserID:      req.UserID,
		Timestamp:   req.Timestamp,
		Confidence:  req.Confidence,
		BBox:        req.BBox,
		Embedding:   req.Embedding,
	}
	if ev.DetectionID == "" {
		ev.DetectionID = uuid.NewString()
	}

	if req.Snapshot != "" && h.minio != nil {
		data, err := base64.StdEncoding.DecodeString(req.Snapshot)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "snapshot is not valid base64"})
			return
		}
		key := fmt.Sprintf("snapshots/%s/%s.jpg", ev.CameraID, ev.DetectionID)
		if err := h.minio.PutObject(c.Request.Context(), key, data, "image/jpeg"); err != nil {
			// The detection still counts without its snapshot.
			slog.Warn("store snapshot", "detection_id", ev.DetectionID, "error", err)
		} else {
			ev.SnapshotKey = key
		}
	}

	// async=true enqueues for the worker pool instead of deciding inline.
	// High-volume pipelines use this; the synchronous path returns the
	// dedup decisions in the response.
	if c.Query("async") == "true" && h.producer != nil {
		if err := ev.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := h.producer.PublishDetection(c.Request.Context(), ev.CameraID, ev); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"detection_id": ev.DetectionID, "status": "queued"})
		return
	}

	res, err := h.intake.Process(c.Request.Context(), ev)
	if err != nil {
		if errors.Is(err, models.ErrInvalidEvent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.IngestResponse{
		Detection: toDetectionResponse(*res.Record),
		Storage: dto.DecisionResponse{
			Accepted:            res.Storage.ShouldStore,
			Reason:              string(res.Storage.Reason),
			OriginalDetectionID: res.Storage.OriginalDetectionID,
		},
	}
	if res.AlertChecked {
		resp.Alert = &dto.DecisionResponse{
			Accepted:            res.Alert.ShouldAlert,
			Reason:              string(res.Alert.Reason),
			OriginalDetectionID: res.Alert.OriginalDetectionID,
		}
	}

	status := http.StatusCreated
	if res.Record.IsDuplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// List returns a filtered page of detection records.
func (h *DetectionHandler) List(c *gin.Context) {
	f := storage.DetectionFilter{
		TargetID: c.Query("target_id"),
		CameraID: c.Query("camera_id"),
		UserID:   c.Query("user_id"),
	}

	if fromStr := c.Query("from"); fromStr != "" {
		if t, err := time.Parse(time.RFC3339, fromStr); err == nil {
			f.From = &t
		}
	}
	if toStr := c.Query("to"); toStr != "" {
		if t, err := time.Parse(time.RFC3339, toStr); err == nil {
			f.To = &t
		}
	}
	if dupStr := c.Query("duplicates"); dupStr != "" {
		b := dupStr == "true" || dupStr == "1"
		f.Duplicates = &b
	}
	if alertedStr := c.Query("alerted"); alertedStr != "" {
		b := alertedStr == "true" || alertedStr == "1"
		f.Alerted = &b
	}

	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	detections, total, err := h.db.QueryDetections(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.DetectionResponse, 0, len(detections))
	for _, d := range detections {
		resp = append(resp, toDetectionResponse(d))
	}

	c.JSON(http.StatusOK, dto.DetectionListResponse{Detections: resp, Total: total})
}

// Get returns a single detection record.
func (h *DetectionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid detection id"})
		return
	}

	d, err := h.db.GetDetection(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "detection not found"})
		return
	}

	c.JSON(http.StatusOK, toDetectionResponse(*d))
}

// Snapshot proxies the face snapshot image from MinIO.
func (h *DetectionHandler) Snapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid detection id"})
		return
	}

	d, err := h.db.GetDetection(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if d == nil || d.SnapshotKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), d.SnapshotKey)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}

	c.Data(http.StatusOK, "image/jpeg", data)
}

func toDetectionResponse(d models.Detection) dto.DetectionResponse {
	r := dto.DetectionResponse{
		ID:           d.ID,
		DetectionID:  d.DetectionID,
		TargetID:     d.TargetID,
		CameraID:     d.CameraID,
		UserID:       d.UserID,
		Timestamp:    d.Timestamp.Format(time.RFC3339),
		Confidence:   d.Confidence,
		BBox:         d.BBox,
		IsDuplicate:  d.IsDuplicate,
		DuplicateOf:  d.DuplicateOf,
		DedupReason:  d.DedupReason,
		AlertCreated: d.AlertCreated,
		CreatedAt:    d.CreatedAt.Format(time.RFC3339),
	}
	if d.SnapshotKey != "" {
		r.SnapshotURL = "/v1/detections/" + d.ID.String() + "/snapshot"
	}
	if d.AlertedAt != nil {
		r.AlertedAt = d.AlertedAt.Format(time.RFC3339)
	}
	return r
}
