// Package marshaller converts telemetry.EventDetails to the wire JSON shape
// shared by the gRPC stream, the dashboard WebSocket and the OTel log sink
// - one envelope since every transport here speaks the same wire JSON
// instead of protobuf.
package marshaller

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/webitel/im-delivery-service/internal/domain/telemetry"
)

// KeyValueWire is the wire rendition of telemetry.KeyValue - the Value sum
// type collapses to whichever single field is populated. Bytes travels as
// base64 since JSON has no native byte-string type.
type KeyValueWire struct {
	Key    string   `json:"key"`
	Name   string   `json:"name,omitempty"`
	String string   `json:"string,omitempty"`
	Int    *int64   `json:"int,omitempty"`
	Float  *float64 `json:"float,omitempty"`
	Bool   *bool    `json:"bool,omitempty"`
	Bytes  string   `json:"bytes,omitempty"`
	IP     string   `json:"ip,omitempty"`
}

// EventWire is the wire rendition of telemetry.EventDetails.
type EventWire struct {
	Type      string         `json:"type"`
	Level     string         `json:"level"`
	Timestamp int64          `json:"timestamp"`
	SpanID    *uint64        `json:"span_id,omitempty"`
	Keys      []KeyValueWire `json:"keys"`
}

func levelName(l telemetry.Level) string {
	switch l {
	case telemetry.LevelDisable:
		return "disable"
	case telemetry.LevelTrace:
		return "trace"
	case telemetry.LevelDebug:
		return "debug"
	case telemetry.LevelInfo:
		return "info"
	case telemetry.LevelWarn:
		return "warn"
	case telemetry.LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func keyName(k telemetry.Key, custom string) string {
	if k == telemetry.KeyCustom {
		return custom
	}
	switch k {
	case telemetry.KeySpanID:
		return "span_id"
	case telemetry.KeyListenerID:
		return "listener_id"
	case telemetry.KeyRemoteIP:
		return "remote_ip"
	case telemetry.KeyDomain:
		return "domain"
	case telemetry.KeyReason:
		return "reason"
	case telemetry.KeyCode:
		return "code"
	default:
		return "unknown"
	}
}

func valueWire(kv telemetry.KeyValue) KeyValueWire {
	w := KeyValueWire{Key: keyName(kv.Key, kv.Name)}
	if kv.Key == telemetry.KeyCustom {
		w.Name = kv.Name
	}
	switch kv.Value.Kind {
	case telemetry.ValueString:
		w.String = kv.Value.Str
	case telemetry.ValueInt, telemetry.ValueTimestamp:
		v := kv.Value.Int
		w.Int = &v
	case telemetry.ValueFloat:
		v := kv.Value.Float
		w.Float = &v
	case telemetry.ValueBool:
		v := kv.Value.Bool
		w.Bool = &v
	case telemetry.ValueBytes:
		w.Bytes = base64.StdEncoding.EncodeToString(kv.Value.Bytes)
	case telemetry.ValueIP:
		w.IP = kv.Value.IP.String()
	}
	return w
}

// ToWire flattens an EventDetails into its wire shape. Span linkage
// collapses to the span's span_id rather than nesting the full parent
// record, since a subscriber only ever needs the join key.
func ToWire(ed *telemetry.EventDetails) EventWire {
	w := EventWire{
		Type:      ed.Event.Type.String(),
		Level:     levelName(ed.Level),
		Timestamp: ed.Timestamp,
	}
	if sid, ok := ed.Event.SpanID(); ok {
		w.SpanID = &sid
	}
	for _, kv := range ed.Event.Keys {
		w.Keys = append(w.Keys, valueWire(kv))
	}
	return w
}

// ToWireBatch converts a batch of EventDetails for a single transport
// frame/message.
func ToWireBatch(batch []*telemetry.EventDetails) []EventWire {
	out := make([]EventWire, 0, len(batch))
	for _, ed := range batch {
		out = append(out, ToWire(ed))
	}
	return out
}

// MarshalBatch renders a batch as a single JSON array frame, the shape the
// WS connection sends. The gRPC stream sends the same ToWireBatch output
// wrapped in an object (EventBatchWire) instead.
func MarshalBatch(batch []*telemetry.EventDetails) ([]byte, error) {
	data, err := json.Marshal(ToWireBatch(batch))
	if err != nil {
		return nil, fmt.Errorf("marshaller: encode batch: %w", err)
	}
	return data, nil
}
