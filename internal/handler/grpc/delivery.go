package grpc

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/webitel/im-delivery-service/internal/domain/registry"
	"github.com/webitel/im-delivery-service/internal/domain/telemetry"
	"github.com/webitel/im-delivery-service/internal/handler/marshaller"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const sendTimeout = 250 * time.Millisecond

// DeliveryService implements the hand-rolled Telemetry service: a
// server-streaming Subscribe call plus a single unary Control call, using
// the JSON messages in messages.go instead of a protoc-generated contract.
type DeliveryService struct {
	logger    *slog.Logger
	collector *telemetry.Collector
	hub       registry.Hubber
}

func NewDeliveryService(logger *slog.Logger, collector *telemetry.Collector, hub registry.Hubber) *DeliveryService {
	return &DeliveryService{logger: logger, collector: collector, hub: hub}
}

// subscribeServerStream is the narrow slice of grpc.ServerStream this
// handler needs - kept as an interface so it can be driven by the
// hand-rolled ServiceDesc without a generated Telemetry_SubscribeServer type.
type subscribeServerStream interface {
	Context() context.Context
	SendMsg(m interface{}) error
}

// Subscribe streams a subscriber's batches to the caller, registering a
// HubSink-backed telemetry.Subscriber for SubscriberID if one doesn't
// already exist and attaching this stream's Connector to the Hub.
func (d *DeliveryService) Subscribe(req *SubscribeRequest, stream subscribeServerStream) error {
	ctx := stream.Context()
	startTime := time.Now()

	if req.SubscriberID == "" {
		return status.Error(codes.InvalidArgument, "subscriber_id is required")
	}

	l := d.logger.With(slog.String("subscriber_id", req.SubscriberID))

	if !slices.Contains(d.collector.ListSubscribers(), req.SubscriberID) {
		sink := registry.NewHubSink(d.hub, req.SubscriberID)
		interests := interestsFromFamilies(req.Families)
		sub := telemetry.NewSubscriber(req.SubscriberID, sink, interests, req.Lossy)
		if err := d.collector.RegisterSubscriber(sub); err != nil {
			return status.Error(codes.Unavailable, err.Error())
		}
	}

	conn := registry.NewConnector(ctx, req.SubscriberID, 64)
	d.hub.Register(conn)

	connID := conn.GetID()
	l = l.With(slog.String("conn_id", connID.String()))
	defer func() {
		d.hub.Unregister(req.SubscriberID, connID)
		conn.Close()
		l.Info("STREAM_TERMINATED", slog.Duration("duration", time.Since(startTime)))
	}()

	l.Info("STREAM_ESTABLISHED")

	for {
		select {
		case <-ctx.Done():
			l.Debug("CLIENT_DISCONNECTED")
			return nil

		case batch, ok := <-conn.Recv():
			if !ok {
				l.Warn("HUB_FORCED_DISCONNECT")
				return status.Error(codes.Unavailable, "session_terminated_by_server")
			}

			wire := EventBatchWire{Events: marshaller.ToWireBatch(batch)}
			if err := stream.SendMsg(&wire); err != nil {
				l.Error("TRANSMISSION_ERROR", slog.Any("err", err))
				return status.Error(codes.DataLoss, "stream_transmission_failed")
			}
		}
	}
}

// Control handles every management-plane operation the gRPC surface
// exposes. A single unary RPC keeps the hand-rolled ServiceDesc small.
func (d *DeliveryService) Control(ctx context.Context, req *ControlRequest) (*ControlResponse, error) {
	switch req.Kind {
	case ControlRegisterSubscriber:
		sink := registry.NewHubSink(d.hub, req.SubscriberID)
		sub := telemetry.NewSubscriber(req.SubscriberID, sink, interestsFromFamilies(req.Families), req.Lossy)
		if err := d.collector.RegisterSubscriber(sub); err != nil {
			return &ControlResponse{OK: false, Error: err.Error()}, controlErrorStatus(err)
		}
		return &ControlResponse{OK: true}, nil

	case ControlUpdateSubscriber:
		if err := d.collector.UpdateSubscriber(req.SubscriberID, interestsFromFamilies(req.Families), req.Lossy); err != nil {
			return &ControlResponse{OK: false, Error: err.Error()}, controlErrorStatus(err)
		}
		return &ControlResponse{OK: true}, nil

	case ControlRemoveSubscriber:
		if err := d.collector.UnregisterSubscriber(req.SubscriberID); err != nil {
			return &ControlResponse{OK: false, Error: err.Error()}, controlErrorStatus(err)
		}
		return &ControlResponse{OK: true}, nil

	case ControlSetLevels:
		levels, err := decodeLevels(req.Levels)
		if err != nil {
			return &ControlResponse{OK: false, Error: err.Error()}, status.Error(codes.InvalidArgument, err.Error())
		}
		if err := d.collector.UpdateLevels(levels); err != nil {
			return &ControlResponse{OK: false, Error: err.Error()}, controlErrorStatus(err)
		}
		return &ControlResponse{OK: true}, nil

	case ControlListSubscribers:
		return &ControlResponse{OK: true, Subscribers: d.collector.ListSubscribers()}, nil

	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown control kind %q", req.Kind)
	}
}

// controlErrorStatus maps a control-plane error from the collector onto a
// gRPC status code: unknown subscriber is NotFound, a stopped collector is
// Unavailable, anything else Internal.
func controlErrorStatus(err error) error {
	switch {
	case errors.Is(err, telemetry.ErrSubscriberNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, telemetry.ErrCollectorStopped):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func interestsFromFamilies(families []string) telemetry.Interests {
	interests := telemetry.NewInterests()
	if len(families) == 0 {
		return *interests
	}
	want := make(map[string]bool, len(families))
	for _, f := range families {
		want[f] = true
	}
	for _, et := range telemetry.AllEventTypes() {
		if want[et.Family.String()] {
			interests.Set(et)
		}
	}
	return *interests
}

func decodeLevels(raw map[string]string) (map[telemetry.EventType]telemetry.Level, error) {
	out := make(map[telemetry.EventType]telemetry.Level, len(raw))
	for k, v := range raw {
		et, err := telemetry.ParseEventType(k)
		if err != nil {
			return nil, err
		}
		lvl, err := telemetry.ParseLevel(v)
		if err != nil {
			return nil, err
		}
		out[et] = lvl
	}
	return out, nil
}
