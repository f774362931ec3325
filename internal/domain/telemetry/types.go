// Package telemetry implements the event collection and distribution
// pipeline: producer-side counters and ring channels, a single collector
// goroutine owning span tracking and subscriber fan-out, and the control
// plane used to mutate collector state from outside the hot path.
package telemetry

import (
	"fmt"
	"net"
)

// EventType identifies a family/ordinal pair: a closed enum split into two
// dimensions so TOTAL_EVENT_COUNT stays a compile-time constant per family
// instead of one flat space that grows awkwardly.
type EventType struct {
	Family  Family
	Ordinal uint8
}

type Family uint8

const (
	FamilyNetwork Family = iota
	FamilyDelivery
	FamilyJMAP
	FamilySMTP
	FamilyReporting
	familyCount
)

// Per-family event counts. Kept small and explicit rather than generated;
// adding an event means bumping the relevant count, and adding a case in
// DefaultLevel if it should not take its family's default.
const (
	networkEventCount    = 4
	deliveryEventCount   = 6
	jmapEventCount       = 5
	smtpEventCount       = 5
	reportingEventCount  = 4
	TotalEventCount      = networkEventCount + deliveryEventCount + jmapEventCount + smtpEventCount + reportingEventCount
)

var familyOffsets = [familyCount]int{}

func init() {
	familyOffsets[FamilyNetwork] = 0
	familyOffsets[FamilyDelivery] = familyOffsets[FamilyNetwork] + networkEventCount
	familyOffsets[FamilyJMAP] = familyOffsets[FamilyDelivery] + deliveryEventCount
	familyOffsets[FamilySMTP] = familyOffsets[FamilyJMAP] + jmapEventCount
	familyOffsets[FamilyReporting] = familyOffsets[FamilySMTP] + smtpEventCount
}

// ID returns the dense, zero-based slot this event type occupies across all
// families - the index used by the levels table, the interests bitset and
// the per-type counters.
func (e EventType) ID() int {
	return familyOffsets[e.Family] + int(e.Ordinal)
}

func (e EventType) String() string {
	return fmt.Sprintf("%s.%d", e.Family, e.Ordinal)
}

// ParseEventType parses the "family.ordinal" form EventType.String()
// produces, used to decode level overrides coming from the config levels
// file or the management API.
func ParseEventType(s string) (EventType, error) {
	for _, et := range AllEventTypes() {
		if et.String() == s {
			return et, nil
		}
	}
	return EventType{}, fmt.Errorf("telemetry: unknown event type %q", s)
}

// ParseLevel parses a level's lowercase name.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "disable":
		return LevelDisable, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return 0, fmt.Errorf("telemetry: unknown level %q", s)
	}
}

func (f Family) String() string {
	switch f {
	case FamilyNetwork:
		return "network"
	case FamilyDelivery:
		return "delivery"
	case FamilyJMAP:
		return "jmap"
	case FamilySMTP:
		return "smtp"
	case FamilyReporting:
		return "reporting"
	default:
		return "unknown"
	}
}

// Network events. ConnectionStart/ConnectionEnd are the span-pairing
// anchors, kept as the first two ordinals; the package-level EvConnStart/
// EvConnEnd values below name them.
const (
	NetworkConnectionStart uint8 = iota
	NetworkConnectionEnd
	NetworkListenError
	NetworkProxyError
)

// Delivery events. AttemptStart/AttemptEnd are the second span-pairing
// anchor.
const (
	DeliveryAttemptStart uint8 = iota
	DeliveryAttemptEnd
	DeliveryCompleted
	DeliveryFailed
	DeliveryDoubleBounce
	DeliveryDsnPermFail
)

const (
	JmapEventCreate uint8 = iota
	JmapEventUpdate
	JmapEventDestroy
	JmapStateChange
	JmapContentionRetry
)

const (
	SmtpConnectionStart uint8 = iota
	SmtpMailFrom
	SmtpRcptTo
	SmtpMessageAccepted
	SmtpMessageRejected
)

const (
	ReportDmarcSent uint8 = iota
	ReportTlsSent
	ReportScheduled
	ReportLockContention
)

var (
	EvConnStart     = EventType{FamilyNetwork, NetworkConnectionStart}
	EvConnEnd       = EventType{FamilyNetwork, NetworkConnectionEnd}
	EvAttemptStart  = EventType{FamilyDelivery, DeliveryAttemptStart}
	EvAttemptEnd    = EventType{FamilyDelivery, DeliveryAttemptEnd}
)

// Level is the severity the collector stamps on each EventDetails from its
// levels table. Nothing checks it before a push: an event at LevelDisable
// is collected and delivered like one at any other level.
type Level uint8

const (
	LevelDisable Level = iota
	LevelTrace
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

// AllEventTypes enumerates every EventType in ID order, used to build the
// default levels table and to validate custom level overrides.
func AllEventTypes() []EventType {
	out := make([]EventType, 0, TotalEventCount)
	add := func(fam Family, n int) {
		for i := 0; i < n; i++ {
			out = append(out, EventType{fam, uint8(i)})
		}
	}
	add(FamilyNetwork, networkEventCount)
	add(FamilyDelivery, deliveryEventCount)
	add(FamilyJMAP, jmapEventCount)
	add(FamilySMTP, smtpEventCount)
	add(FamilyReporting, reportingEventCount)
	return out
}

// DefaultLevel is the level an event type collects at absent any custom
// override.
func DefaultLevel(e EventType) Level {
	switch e {
	case EvConnStart, EvConnEnd, EvAttemptStart, EvAttemptEnd:
		return LevelDebug
	default:
		switch e.Family {
		case FamilyReporting:
			return LevelInfo
		default:
			return LevelTrace
		}
	}
}

// ValueKind tags the closed sum type carried by a KeyValue.
type ValueKind uint8

const (
	ValueString ValueKind = iota
	ValueInt
	ValueFloat
	ValueBool
	ValueTimestamp
	ValueBytes
	ValueIP
)

// Value is a closed, switch-exhaustive union - the Go rendition of the
// spec's tagged EventValue, deliberately concrete instead of `any` so
// subscriber sinks can type-switch exhaustively.
type Value struct {
	Kind  ValueKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	Bytes []byte
	IP    net.IP
}

func StringValue(s string) Value   { return Value{Kind: ValueString, Str: s} }
func IntValue(i int64) Value       { return Value{Kind: ValueInt, Int: i} }
func FloatValue(f float64) Value   { return Value{Kind: ValueFloat, Float: f} }
func BoolValue(b bool) Value       { return Value{Kind: ValueBool, Bool: b} }
func TimestampValue(t int64) Value { return Value{Kind: ValueTimestamp, Int: t} }
func BytesValue(b []byte) Value    { return Value{Kind: ValueBytes, Bytes: b} }
func IPValue(ip net.IP) Value      { return Value{Kind: ValueIP, IP: ip} }

// Key identifies one field in an event's key/value payload. A fixed set of
// well-known keys keeps span-id extraction (SpanID below) allocation-free.
type Key uint8

const (
	KeySpanID Key = iota
	KeyListenerID
	KeyRemoteIP
	KeyDomain
	KeyReason
	KeyCode
	KeyCustom
)

type KeyValue struct {
	Key   Key
	Name  string // populated only when Key == KeyCustom
	Value Value
}

// Event is the raw, producer-submitted record: a type plus its key/value
// payload, before the collector stamps a timestamp/level/span and wraps it
// into EventDetails.
type Event struct {
	Type EventType
	Keys []KeyValue
}

// SpanID extracts the well-known KeySpanID field, if present. Span-bearing
// events (connection/delivery-attempt start/end, and anything nested under
// them) always carry one.
func (e *Event) SpanID() (uint64, bool) {
	for _, kv := range e.Keys {
		if kv.Key == KeySpanID && kv.Value.Kind == ValueInt {
			return uint64(kv.Value.Int), true
		}
	}
	return 0, false
}

// EventDetails is the enriched, immutable record the collector hands to
// subscribers: a raw Event plus the level it was collected at, a wall-clock
// timestamp, and - for most event types - a shared link to its parent span.
type EventDetails struct {
	Event     *Event
	Level     Level
	Timestamp int64
	Span      *EventDetails
}
