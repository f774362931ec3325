package grpc

import (
	"github.com/webitel/im-delivery-service/internal/handler/marshaller"
)

// SubscribeRequest opens the server-streaming Subscribe call.
type SubscribeRequest struct {
	SubscriberID string   `json:"subscriber_id"`
	Lossy        bool     `json:"lossy"`
	MaxBatch     int      `json:"max_batch"`
	Families     []string `json:"families,omitempty"`
}

// EventBatchWire is one frame of the Subscribe stream.
type EventBatchWire struct {
	Events []marshaller.EventWire `json:"events"`
}

// ControlRequest is the single unary RPC covering every control-plane
// operation the management surface exposes - Kind selects which fields are
// populated, avoiding the need for a .proto/protoc-generated oneof.
type ControlRequest struct {
	Kind ControlKind `json:"kind"`

	SubscriberID string   `json:"subscriber_id,omitempty"`
	Lossy        bool     `json:"lossy,omitempty"`
	Families     []string `json:"families,omitempty"`

	Levels map[string]string `json:"levels,omitempty"`
}

type ControlKind string

const (
	ControlRegisterSubscriber ControlKind = "register_subscriber"
	ControlUpdateSubscriber   ControlKind = "update_subscriber"
	ControlRemoveSubscriber   ControlKind = "remove_subscriber"
	ControlSetLevels          ControlKind = "set_levels"
	ControlListSubscribers    ControlKind = "list_subscribers"
)

type ControlResponse struct {
	OK          bool     `json:"ok"`
	Error       string   `json:"error,omitempty"`
	Subscribers []string `json:"subscribers,omitempty"`
}
