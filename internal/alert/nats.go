package alert

import (
	"context"
	"fmt"

	"github.com/your-org/sentinel/internal/queue"
)

// NATSDispatcher publishes notifications to the ALERTS JetStream stream,
// where the API process picks them up for WebSocket delivery and any
// external notifier can attach its own consumer.
type NATSDispatcher struct {
	producer *queue.Producer
}

func NewNATSDispatcher(producer *queue.Producer) *NATSDispatcher {
	return &NATSDispatcher{producer: producer}
}

func (d *NATSDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if err := d.producer.PublishAlert(ctx, n.Recipient, n); err != nil {
		return fmt.Errorf("dispatch alert for %s: %w", n.Target, err)
	}
	return nil
}
