package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-delivery-service/internal/service/reporting"
)

// ReportNotification is published after each attempt to send a
// ReportEvent's report - a supplemental, observability-only channel
// dashboards and other nodes can tail; it is never read back as
// scheduling authority, keeping every node's own Store the sole source of
// truth for what it will dispatch.
type ReportNotification struct {
	Event  reporting.ReportEvent `json:"event"`
	Status string                `json:"status"` // "sent" | "failed"
}

// ReportDispatcher publishes ReportNotifications onto the message bus.
type ReportDispatcher interface {
	Publish(ctx context.Context, topic string, n ReportNotification) error
}

type reportDispatcher struct {
	publisher message.Publisher
}

func NewReportDispatcher(pub message.Publisher) ReportDispatcher {
	return &reportDispatcher{publisher: pub}
}

func (d *reportDispatcher) Publish(ctx context.Context, topic string, n ReportNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("report dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := d.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("report dispatcher: publish to %s failed: %w", topic, err)
	}
	return nil
}
