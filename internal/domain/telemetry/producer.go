package telemetry

// Producer is the thin, allocation-conscious handle an SMTP/JMAP worker
// goroutine holds to submit events. It exists purely to pair a Channel
// with the interest short-circuit so call sites read as a single guard
// clause.
type Producer struct {
	ch *Channel
}

func NewProducer(ch *Channel) *Producer {
	return &Producer{ch: ch}
}

// Emit submits a raw event if, and only if, some subscriber is interested
// in its type. Returns false both when nobody's listening (the common
// case, by design nearly free) and when the ring was full and its oldest
// event was dropped to make room for this one.
func (p *Producer) Emit(e *Event) bool {
	if !HasInterest(e.Type) {
		return false
	}
	return p.ch.Send(e)
}

// EmitIf is a convenience wrapper for producers that build the key/value
// payload lazily - build avoids doing that work at all when nobody cares.
func (p *Producer) EmitIf(t EventType, build func() []KeyValue) bool {
	if !HasInterest(t) {
		return false
	}
	return p.ch.Send(&Event{Type: t, Keys: build()})
}
