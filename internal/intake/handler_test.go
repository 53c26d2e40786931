package intake

import (
	"context"
	"errors"
	"testing"

	"github.com/your-org/sentinel/internal/alert"
	"github.com/your-org/sentinel/internal/cache"
	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/dedup"
	"github.com/your-org/sentinel/internal/models"
)

type fakeStore struct {
	created []*models.Detection
	fail    bool
}

func (s *fakeStore) CreateDetection(ctx context.Context, d *models.Detection) error {
	if s.fail {
		return errors.New("db down")
	}
	s.created = append(s.created, d)
	return nil
}

type fakeDispatcher struct {
	sent []alert.Notification
	fail bool
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, n alert.Notification) error {
	if d.fail {
		return errors.New("dispatch down")
	}
	d.sent = append(d.sent, n)
	return nil
}

func testHandler(cfg config.DedupConfig) (*Handler, *fakeStore, *fakeDispatcher) {
	engine := dedup.New(cache.NewMemoryStore(), cfg)
	store := &fakeStore{}
	dispatcher := &fakeDispatcher{}
	return NewHandler(engine, store, dispatcher, cfg), store, dispatcher
}

func testEvent(id string, ts float64) models.DetectionEvent {
	return models.DetectionEvent{
		DetectionID: id,
		TargetID:    "t1",
		CameraID:    "c1",
		UserID:      "u1",
		Timestamp:   ts,
		Confidence:  0.8,
		BBox:        models.BoundingBox{X: 0, Y: 0, W: 100, H: 100},
	}
}

func TestProcessNewDetection(t *testing.T) {
	h, store, dispatcher := testHandler(config.Default().Dedup)

	res, err := h.Process(context.Background(), testEvent("d1", 1000))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.Storage.ShouldStore || !res.Alert.ShouldAlert {
		t.Fatalf("decisions = %+v", res)
	}

	if len(store.created) != 1 {
		t.Fatalf("created %d records, want 1", len(store.created))
	}
	rec := store.created[0]
	if rec.IsDuplicate || !rec.AlertCreated || rec.AlertedAt == nil {
		t.Fatalf("record = %+v", rec)
	}

	if len(dispatcher.sent) != 1 {
		t.Fatalf("dispatched %d notifications, want 1", len(dispatcher.sent))
	}
	n := dispatcher.sent[0]
	if n.Verb != "detected" || n.Target != "t1" || n.Recipient != "u1" || n.Actor != "c1" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestProcessDuplicateStillChecksAlert(t *testing.T) {
	h, store, _ := testHandler(config.Default().Dedup)
	ctx := context.Background()

	if _, err := h.Process(ctx, testEvent("d1", 1000)); err != nil {
		t.Fatalf("first: %v", err)
	}

	res, err := h.Process(ctx, testEvent("d2", 1010))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if res.Storage.ShouldStore {
		t.Fatalf("expected duplicate, got %+v", res.Storage)
	}
	if !res.AlertChecked {
		t.Fatalf("alert check skipped for duplicate with default config")
	}

	rec := store.created[1]
	if !rec.IsDuplicate {
		t.Fatalf("duplicate record not flagged: %+v", rec)
	}
	if rec.DuplicateOf == nil || *rec.DuplicateOf != "d1" {
		t.Fatalf("duplicate_of = %v, want d1", rec.DuplicateOf)
	}
	if rec.DedupReason == "" {
		t.Fatalf("duplicate record missing dedup reason")
	}
}

func TestProcessDuplicateAlertCheckDisabled(t *testing.T) {
	cfg := config.Default().Dedup
	off := false
	cfg.AlertCheckAfterDuplicate = &off
	h, _, dispatcher := testHandler(cfg)
	ctx := context.Background()

	if _, err := h.Process(ctx, testEvent("d1", 1000)); err != nil {
		t.Fatalf("first: %v", err)
	}
	res, err := h.Process(ctx, testEvent("d2", 1010))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if res.AlertChecked {
		t.Fatalf("alert check should be skipped for duplicates")
	}
	if len(dispatcher.sent) != 1 {
		t.Fatalf("dispatched %d, want 1 (first event only)", len(dispatcher.sent))
	}
}

func TestProcessGeneratesDetectionID(t *testing.T) {
	h, store, _ := testHandler(config.Default().Dedup)

	ev := testEvent("", 1000)
	if _, err := h.Process(context.Background(), ev); err != nil {
		t.Fatalf("process: %v", err)
	}
	if store.created[0].DetectionID == "" {
		t.Fatalf("detection id not generated")
	}
}

func TestProcessRejectsMalformedEvent(t *testing.T) {
	h, store, _ := testHandler(config.Default().Dedup)

	ev := testEvent("d1", 1000)
	ev.TargetID = ""
	_, err := h.Process(context.Background(), ev)
	if !errors.Is(err, models.ErrInvalidEvent) {
		t.Fatalf("err = %v, want ErrInvalidEvent", err)
	}
	if len(store.created) != 0 {
		t.Fatalf("malformed event was persisted")
	}

	ev = testEvent("d2", 1000)
	ev.Confidence = 1.5
	if _, err := h.Process(context.Background(), ev); !errors.Is(err, models.ErrInvalidEvent) {
		t.Fatalf("err = %v, want ErrInvalidEvent", err)
	}
}

func TestProcessDispatchFailureIsNonFatal(t *testing.T) {
	h, store, dispatcher := testHandler(config.Default().Dedup)
	dispatcher.fail = true

	res, err := h.Process(context.Background(), testEvent("d1", 1000))
	if err != nil {
		t.Fatalf("dispatch failure must not fail processing: %v", err)
	}
	if !res.Alert.ShouldAlert {
		t.Fatalf("alert decision = %+v", res.Alert)
	}
	if len(store.created) != 1 {
		t.Fatalf("record not persisted despite dispatch failure")
	}
}
