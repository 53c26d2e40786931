package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/your-org/sentinel/internal/alert"
	"github.com/your-org/sentinel/internal/cache"
	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/dedup"
	"github.com/your-org/sentinel/internal/intake"
	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/pkg/dto"
)

type memRecordStore struct {
	mu      sync.Mutex
	records []*models.Detection
}

func (s *memRecordStore) CreateDetection(_ context.Context, d *models.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, d)
	return nil
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, alert.Notification) error { return nil }

func newTestHandler(t *testing.T) (*DetectionHandler, *memRecordStore) {
	t.Helper()
	cfg := config.Default().Dedup
	engine := dedup.New(cache.NewMemoryStore(), cfg)
	store := &memRecordStore{}
	ih := intake.NewHandler(engine, store, noopDispatcher{}, cfg)
	return NewDetectionHandler(ih, nil, nil, nil), store
}

func postDetection(t *testing.T, h *DetectionHandler, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/detections", bytes.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")
	h.Ingest(c)
	return w
}

func ingestBody(detectionID string, ts float64) dto.IngestRequest {
	return dto.IngestRequest{
		DetectionID: detectionID,
		TargetID:    "target-1",
		CameraID:    "cam-1",
		UserID:      "user-1",
		Timestamp:   ts,
		Confidence:  0.9,
		BBox:        models.BoundingBox{X: 10, Y: 10, W: 100, H: 100},
	}
}

func TestIngestNewDetection(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, store := newTestHandler(t)

	w := postDetection(t, h, ingestBody("d1", 1000))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp dto.IngestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Storage.Accepted {
		t.Errorf("storage.accepted = false, want true (reason %q)", resp.Storage.Reason)
	}
	if resp.Alert == nil || !resp.Alert.Accepted {
		t.Errorf("alert decision missing or not accepted: %+v", resp.Alert)
	}
	if len(store.records) != 1 {
		t.Fatalf("persisted %d records, want 1", len(store.records))
	}
}

func TestIngestDuplicateReturnsOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, store := newTestHandler(t)

	if w := postDetection(t, h, ingestBody("d1", 1000)); w.Code != http.StatusCreated {
		t.Fatalf("first ingest status = %d", w.Code)
	}
	w := postDetection(t, h, ingestBody("d2", 1005))

	if w.Code != http.StatusOK {
		t.Fatalf("duplicate status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp dto.IngestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Storage.Accepted {
		t.Error("storage.accepted = true for a near-identical repeat")
	}
	if !resp.Detection.IsDuplicate {
		t.Error("detection.is_duplicate = false, want true")
	}
	if resp.Detection.DuplicateOf == nil || *resp.Detection.DuplicateOf != "d1" {
		t.Errorf("duplicate_of = %v, want d1", resp.Detection.DuplicateOf)
	}
	// Duplicates are still persisted as linked records.
	if len(store.records) != 2 {
		t.Fatalf("persisted %d records, want 2", len(store.records))
	}
}

func TestIngestMissingRequiredFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, store := newTestHandler(t)

	body := ingestBody("d1", 1000)
	body.TargetID = ""
	w := postDetection(t, h, body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if len(store.records) != 0 {
		t.Fatalf("persisted %d records for a rejected request, want 0", len(store.records))
	}
}

func TestIngestInvalidConfidence(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newTestHandler(t)

	body := ingestBody("d1", 1000)
	body.Confidence = 1.5
	w := postDetection(t, h, body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestIngestMalformedJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, _ := newTestHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/detections", bytes.NewReader([]byte("{not json")))
	c.Request.Header.Set("Content-Type", "application/json")
	h.Ingest(c)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
