// Package alert delivers user-facing watchlist notifications. The core
// engine decides; this package only carries the result outward.
package alert

import (
	"context"
	"time"
)

// Notification is one user-facing alert. Verb is always "detected" for
// watchlist sightings; the field exists so downstream consumers can
// route on it.
type Notification struct {
	Recipient   string    `json:"recipient"` // owning user
	Actor       string    `json:"actor"`     // originating camera
	Verb        string    `json:"verb"`
	Target      string    `json:"target"` // watchlisted entity
	Description string    `json:"description"`
	DetectionID string    `json:"detection_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// Dispatcher sends notifications. Dispatch failures are logged by the
// caller and never roll back storage decisions.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}
