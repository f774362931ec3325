package amqp

import (
	"context"

	pubsubadapter "github.com/webitel/im-delivery-service/internal/adapter/pubsub"
	"github.com/webitel/im-delivery-service/internal/service/reporting"
)

const reportNotificationTopic = "telemetry.reporting.notifications"

// notifyingSender decorates a reporting.ReportSender so every send also
// publishes a ReportNotification - the observability-only AMQP channel
// dashboards and other nodes can tail (see pubsub.ReportNotification).
type notifyingSender struct {
	next       reporting.ReportSender
	dispatcher pubsubadapter.ReportDispatcher
}

// DecorateSender wires notifyingSender in via fx.Decorate, keeping the
// underlying LogSender (or whatever production sender is provided) as the
// actual delivery mechanism.
func DecorateSender(next reporting.ReportSender, dispatcher pubsubadapter.ReportDispatcher) reporting.ReportSender {
	return &notifyingSender{next: next, dispatcher: dispatcher}
}

func (s *notifyingSender) SendDmarcAggregateReport(ctx context.Context, e reporting.ReportEvent) error {
	err := s.next.SendDmarcAggregateReport(ctx, e)
	status := "sent"
	if err != nil {
		status = "failed"
	}
	_ = s.dispatcher.Publish(ctx, reportNotificationTopic, pubsubadapter.ReportNotification{Event: e, Status: status})
	return err
}

func (s *notifyingSender) SendTlsAggregateReport(ctx context.Context, group []reporting.ReportEvent) error {
	err := s.next.SendTlsAggregateReport(ctx, group)
	status := "sent"
	if err != nil {
		status = "failed"
	}
	for _, e := range group {
		_ = s.dispatcher.Publish(ctx, reportNotificationTopic, pubsubadapter.ReportNotification{Event: e, Status: status})
	}
	return err
}
