package dedup

import (
	"math"

	"github.com/your-org/sentinel/internal/models"
)

// Overlap computes the intersection-over-union ratio of two boxes as a
// proxy for "same physical sighting". Returns 0 when the boxes are
// disjoint or the union has no area. Pure; callers reject malformed
// boxes before invoking.
func Overlap(a, b models.BoundingBox) float64 {
	ax2, ay2 := a.X+a.W, a.Y+a.H
	bx2, by2 := b.X+b.W, b.Y+b.H

	x1 := math.Max(a.X, b.X)
	y1 := math.Max(a.Y, b.Y)
	x2 := math.Min(ax2, bx2)
	y2 := math.Min(ay2, by2)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	intersection := (x2 - x1) * (y2 - y1)

	union := a.W*a.H + b.W*b.H - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}
