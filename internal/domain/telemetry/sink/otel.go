// Package sink provides telemetry.Sink implementations that export
// collected events to OpenTelemetry rather than to a viewer connection.
package sink

import (
	"context"
	"log/slog"

	"github.com/webitel/im-delivery-service/internal/domain/telemetry"
	"github.com/webitel/im-delivery-service/internal/handler/marshaller"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func eventTypeAttr(t string) attribute.KeyValue {
	return attribute.String("event_type", t)
}

// MetricsSink records one OTel Int64Counter increment per event in a
// flushed batch, labelled by event type - an export-side mirror of the
// in-process CounterTable, for operators already running an OTel
// collector.
type MetricsSink struct {
	counter metric.Int64Counter
}

func NewMetricsSink(meter metric.Meter) (*MetricsSink, error) {
	counter, err := meter.Int64Counter(
		"telemetry.events.total",
		metric.WithDescription("Count of collected telemetry events by type"),
	)
	if err != nil {
		return nil, err
	}
	return &MetricsSink{counter: counter}, nil
}

func (s *MetricsSink) SendBatch(batch []*telemetry.EventDetails) error {
	ctx := context.Background()
	for _, ed := range batch {
		s.counter.Add(ctx, 1, metric.WithAttributes(
			eventTypeAttr(ed.Event.Type.String()),
		))
	}
	return nil
}

func (s *MetricsSink) Close() error { return nil }

// LogSink emits every enriched event as a structured slog record, relying
// on the caller to have installed an otelslog-bridged handler so records
// flow into the OTel logs pipeline - this sink itself stays a plain
// telemetry.Sink, agnostic to whether its logger is bridged.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) SendBatch(batch []*telemetry.EventDetails) error {
	for _, ed := range batch {
		wire := marshaller.ToWire(ed)
		s.logger.Info("TELEMETRY_EVENT",
			slog.String("type", wire.Type),
			slog.String("level", wire.Level),
			slog.Int64("timestamp", wire.Timestamp),
		)
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
