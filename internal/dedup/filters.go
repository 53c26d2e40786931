package dedup

import (
	"context"

	"github.com/your-org/sentinel/internal/models"
)

// Reason explains a dedup decision.
type Reason string

const (
	ReasonNewDetection    Reason = "new_detection"
	ReasonAllChecksPassed Reason = "all_checks_passed"
	ReasonTemporal        Reason = "temporal"
	ReasonSpatial         Reason = "spatial"
	ReasonConfidence      Reason = "confidence"
	ReasonRateLimiting    Reason = "rate_limiting"
	ReasonErrorFallback   Reason = "error_fallback"
)

// verdict is one filter's outcome. A zero originalID means the filter
// could not attribute the rejection to a specific cached detection.
type verdict struct {
	accept     bool
	reason     Reason
	originalID string
}

func accepted() verdict {
	return verdict{accept: true}
}

func rejected(reason Reason, originalID string) verdict {
	return verdict{reason: reason, originalID: originalID}
}

// temporalFilter rejects an event arriving within windowSeconds of the
// policy's last accepted marker. A negative delta means near-simultaneous
// or reordered delivery for the same key and is treated as too-small.
func (e *Engine) temporalFilter(ctx context.Context, ns string, key models.DetectionKey, ev models.DetectionEvent, windowSeconds float64) (verdict, error) {
	last, err := e.cache.marker(ctx, ns, key)
	if err != nil {
		return verdict{}, err
	}
	if last == nil {
		return accepted(), nil
	}
	if delta := ev.Timestamp - last.Timestamp; delta < windowSeconds {
		return rejected(ReasonTemporal, last.DetectionID), nil
	}
	return accepted(), nil
}

// spatialFilter rejects on the first cached box overlapping strictly more
// than threshold. Overlap exactly at the threshold is not a duplicate.
// Events without a usable box always pass.
func (e *Engine) spatialFilter(ctx context.Context, ns string, key models.DetectionKey, ev models.DetectionEvent, threshold float64) (verdict, error) {
	if ev.BBox.IsZero() {
		return accepted(), nil
	}

	recent, err := e.cache.boxes(ctx, ns, key)
	if err != nil {
		return verdict{}, err
	}
	for _, entry := range recent {
		if Overlap(ev.BBox, entry.BBox) > threshold {
			return rejected(ReasonSpatial, entry.DetectionID), nil
		}
	}
	return accepted(), nil
}

// confidenceEpsilon absorbs float representation error in the threshold
// comparison: 0.82 must pass against best 0.80 + improvement 0.02 even
// though the decimal literals do not sum exactly.
const confidenceEpsilon = 1e-9

// confidenceFilter accepts only events whose confidence improves on the
// best cached confidence by at least improvement. Exactly at the
// threshold counts as an improvement.
func (e *Engine) confidenceFilter(ctx context.Context, ns string, key models.DetectionKey, ev models.DetectionEvent, improvement float64) (verdict, error) {
	recent, err := e.cache.confidences(ctx, ns, key)
	if err != nil {
		return verdict{}, err
	}
	if len(recent) == 0 {
		return accepted(), nil
	}

	best := recent[0]
	for _, entry := range recent[1:] {
		if entry.Confidence > best.Confidence {
			best = entry
		}
	}
	if ev.Confidence+confidenceEpsilon >= best.Confidence+improvement {
		return accepted(), nil
	}
	return rejected(ReasonConfidence, best.DetectionID), nil
}

// runFilters evaluates temporal, spatial, confidence in that fixed order
// with short-circuit rejection. The ordering is cheapest-first and pins
// which reason is reported when several filters would reject.
func (e *Engine) runFilters(ctx context.Context, ns string, key models.DetectionKey, ev models.DetectionEvent, p policyParams) (verdict, error) {
	v, err := e.temporalFilter(ctx, ns, key, ev, p.windowSeconds)
	if err != nil || !v.accept {
		return v, err
	}
	v, err = e.spatialFilter(ctx, ns, key, ev, p.spatialThreshold)
	if err != nil || !v.accept {
		return v, err
	}
	return e.confidenceFilter(ctx, ns, key, ev, p.confidenceImprovement)
}

type policyParams struct {
	windowSeconds         float64
	spatialThreshold      float64
	confidenceImprovement float64
}
