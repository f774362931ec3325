package registry

import "github.com/webitel/im-delivery-service/internal/domain/telemetry"

var _ telemetry.Sink = (*HubSink)(nil)

// HubSink adapts a Hub into the telemetry.Sink contract a Subscriber
// flushes batches into: every attached viewer connection for the given
// subscriber id receives the same batch. Registering a subscriber whose
// sink is a HubSink is how the gRPC Subscribe and websocket dashboard
// handlers both attach under one logical subscriber id (see
// internal/handler/grpc and internal/handler/ws).
type HubSink struct {
	hub          Hubber
	subscriberID string
}

func NewHubSink(hub Hubber, subscriberID string) *HubSink {
	return &HubSink{hub: hub, subscriberID: subscriberID}
}

func (s *HubSink) SendBatch(batch []*telemetry.EventDetails) error {
	s.hub.Broadcast(s.subscriberID, batch)
	return nil
}

func (s *HubSink) Close() error {
	return nil
}
