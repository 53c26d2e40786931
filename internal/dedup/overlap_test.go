package dedup

import (
	"math"
	"testing"

	"github.com/your-org/sentinel/internal/models"
)

func box(x, y, w, h float64) models.BoundingBox {
	return models.BoundingBox{X: x, Y: y, W: w, H: h}
}

func TestOverlapIdenticalBoxes(t *testing.T) {
	b := box(10, 10, 100, 100)
	if got := Overlap(b, b); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("overlap of identical boxes = %v, want 1.0", got)
	}
}

func TestOverlapDisjoint(t *testing.T) {
	a := box(0, 0, 50, 50)
	b := box(100, 100, 50, 50)
	if got := Overlap(a, b); got != 0 {
		t.Fatalf("overlap of disjoint boxes = %v, want 0", got)
	}
}

func TestOverlapTouchingEdges(t *testing.T) {
	// Boxes sharing only an edge have zero intersection area.
	a := box(0, 0, 50, 50)
	b := box(50, 0, 50, 50)
	if got := Overlap(a, b); got != 0 {
		t.Fatalf("overlap of edge-touching boxes = %v, want 0", got)
	}
}

func TestOverlapPartial(t *testing.T) {
	// 100x100 boxes offset by (50,0): intersection 50*100=5000,
	// union 10000+10000-5000=15000, IoU = 1/3.
	a := box(0, 0, 100, 100)
	b := box(50, 0, 100, 100)
	want := 1.0 / 3.0
	if got := Overlap(a, b); math.Abs(got-want) > 1e-9 {
		t.Fatalf("overlap = %v, want %v", got, want)
	}
}

func TestOverlapContained(t *testing.T) {
	// Inner box fully contained: IoU = inner area / outer area.
	outer := box(0, 0, 100, 100)
	inner := box(25, 25, 50, 50)
	want := 2500.0 / 10000.0
	if got := Overlap(outer, inner); math.Abs(got-want) > 1e-9 {
		t.Fatalf("overlap = %v, want %v", got, want)
	}
}

func TestOverlapZeroUnion(t *testing.T) {
	// Degenerate boxes must not divide by zero.
	a := box(10, 10, 0, 0)
	b := box(10, 10, 0, 0)
	if got := Overlap(a, b); got != 0 {
		t.Fatalf("overlap of zero-area boxes = %v, want 0", got)
	}
}

func TestOverlapCommutative(t *testing.T) {
	a := box(0, 0, 80, 60)
	b := box(40, 20, 90, 70)
	if Overlap(a, b) != Overlap(b, a) {
		t.Fatalf("overlap is not commutative")
	}
}
