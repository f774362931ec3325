package telemetry

import (
	"log/slog"
	"testing"
	"time"
)

type fakeSink struct {
	batches [][]*EventDetails
	err     error
}

func (f *fakeSink) SendBatch(batch []*EventDetails) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeSink) Close() error { return nil }

func newTestCollector() *Collector {
	return NewCollector(slog.Default())
}

// S1: a subscriber interested in delivery events receives a delivery
// event submitted through a registered producer channel.
func TestCollectorDeliversInterestedEvent(t *testing.T) {
	c := newTestCollector()
	go c.Run()
	defer func() { _ = c.Shutdown() }()

	ch := NewChannel(16)
	if err := c.RegisterReceiver(ch); err != nil {
		t.Fatalf("RegisterReceiver: %v", err)
	}

	interests := NewInterests()
	interests.Set(EventType{FamilyDelivery, DeliveryCompleted})
	SetInterests(*interests)

	sink := &fakeSink{}
	sub := NewSubscriber("sub-1", sink, *interests, false)
	if err := c.RegisterSubscriber(sub); err != nil {
		t.Fatalf("RegisterSubscriber: %v", err)
	}

	if !HasInterest(EventType{FamilyDelivery, DeliveryCompleted}) {
		t.Fatalf("expected global interest to be set")
	}

	ch.Send(&Event{Type: EventType{FamilyDelivery, DeliveryCompleted}})

	deadline := time.After(time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for delivery")
		default:
		}
		if len(sink.batches) > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// S2: events whose type nobody is interested in never reach any sink -
// HasInterest must gate at the producer before the ring is even touched.
func TestProducerSkipsUninterestedEvent(t *testing.T) {
	SetInterests(*NewInterests())
	ch := NewChannel(4)
	p := NewProducer(ch)

	sent := p.Emit(&Event{Type: EventType{FamilyJMAP, JmapEventCreate}})
	if sent {
		t.Fatal("expected Emit to short-circuit with no interests registered")
	}
}

// S3: span joining - an End event, and an event nested under the span
// before it ends, both get the Start event recorded under the same span id
// attached.
func TestSpanJoining(t *testing.T) {
	c := newTestCollector()
	go c.Run()
	defer func() { _ = c.Shutdown() }()

	ch := NewChannel(16)
	if err := c.RegisterReceiver(ch); err != nil {
		t.Fatalf("RegisterReceiver: %v", err)
	}

	interests := NewInterests()
	interests.Set(EventType{FamilyDelivery, DeliveryCompleted})
	interests.Set(EvAttemptEnd)
	SetInterests(*interests)

	sink := &fakeSink{}
	sub := NewSubscriber("sub-span", sink, *interests, false)
	if err := c.RegisterSubscriber(sub); err != nil {
		t.Fatalf("RegisterSubscriber: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	ch.Send(&Event{Type: EvAttemptStart, Keys: []KeyValue{{Key: KeySpanID, Value: IntValue(42)}}})
	ch.Send(&Event{Type: EventType{FamilyDelivery, DeliveryCompleted}, Keys: []KeyValue{{Key: KeySpanID, Value: IntValue(42)}}})
	ch.Send(&Event{Type: EvAttemptEnd, Keys: []KeyValue{{Key: KeySpanID, Value: IntValue(42)}}})

	deadline := time.After(time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for span-joined batch")
		default:
		}
		var nestedJoined, endJoined bool
		for _, batch := range sink.batches {
			for _, ev := range batch {
				if ev.Span == nil || ev.Span.Event.Type != EvAttemptStart {
					continue
				}
				switch ev.Event.Type {
				case EventType{FamilyDelivery, DeliveryCompleted}:
					nestedJoined = true
				case EvAttemptEnd:
					endJoined = true
				}
			}
		}
		if nestedJoined && endJoined {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// S4: a failing sink gets its subscriber evicted instead of wedging the
// collector loop.
func TestSubscriberEvictedAfterRepeatedFailures(t *testing.T) {
	c := newTestCollector()
	go c.Run()
	defer func() { _ = c.Shutdown() }()

	ch := NewChannel(16)
	if err := c.RegisterReceiver(ch); err != nil {
		t.Fatalf("RegisterReceiver: %v", err)
	}

	interests := NewInterests()
	interests.Set(EventType{FamilyDelivery, DeliveryFailed})
	SetInterests(*interests)

	sink := &fakeSink{err: ErrSinkUnavailable}
	sub := NewSubscriber("sub-fail", sink, *interests, false)
	if err := c.RegisterSubscriber(sub); err != nil {
		t.Fatalf("RegisterSubscriber: %v", err)
	}

	for i := 0; i < 5; i++ {
		ch.Send(&Event{Type: EventType{FamilyDelivery, DeliveryFailed}})
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.After(time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for eviction")
		default:
		}
		found := false
		for _, id := range c.ListSubscribers() {
			if id == "sub-fail" {
				found = true
			}
		}
		if !found {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// Invariant: a lossy subscriber's pending batch never exceeds maxBatch.
func TestLossySubscriberBoundedBatch(t *testing.T) {
	sink := &fakeSink{}
	interests := NewInterests()
	interests.Set(EventType{FamilyNetwork, NetworkListenError})
	sub := NewSubscriber("lossy", sink, *interests, true)
	sub.maxBatch = 4

	for i := 0; i < 10; i++ {
		sub.PushEvent(0, &EventDetails{Event: &Event{Type: EventType{FamilyNetwork, NetworkListenError}}})
	}

	if len(sub.pending) != 4 {
		t.Fatalf("expected pending to be capped at 4, got %d", len(sub.pending))
	}
}

// Stale-span GC: once a span table crosses StaleSpanCheckWatermark, entries
// older than SpanMaxHoldSeconds are swept; anything fresher survives.
func TestSpanTableSweepsEntriesPastMaxHold(t *testing.T) {
	tbl := newSpanTable()

	now := int64(1_700_000_000)
	staleID := uint64(1)
	freshID := uint64(2)

	tbl.put(staleID, &EventDetails{Timestamp: now - SpanMaxHoldSeconds - 1})
	tbl.put(freshID, &EventDetails{Timestamp: now})

	tbl.sweepStale(now)

	if _, ok := tbl.get(staleID); ok {
		t.Fatal("expected stale span to be swept")
	}
	if _, ok := tbl.get(freshID); !ok {
		t.Fatal("expected fresh span to survive the sweep")
	}
}

// ingest triggers the stale-span sweep itself once the table length crosses
// the watermark, rather than relying on a caller to invoke it directly.
func TestIngestSweepsStaleSpansPastWatermark(t *testing.T) {
	c := newTestCollector()

	now := int64(1_700_000_000)
	for i := 0; i < StaleSpanCheckWatermark; i++ {
		c.spans.put(uint64(i+100), &EventDetails{Timestamp: now - SpanMaxHoldSeconds - 1})
	}

	c.ingest(&Event{
		Type: EvAttemptStart,
		Keys: []KeyValue{{Key: KeySpanID, Value: IntValue(999999)}},
	}, now)

	if got := c.spans.len(); got > 1 {
		t.Fatalf("expected the watermark-triggered sweep to clear stale spans, %d remain", got)
	}
}

// Level override then clearing it via UpdateLevels(nil/empty) reverts the
// event type back to DefaultLevel, observable in the Level stamped on the
// EventDetails a subscriber receives.
func TestLevelOverrideThenRevertToDefault(t *testing.T) {
	c := newTestCollector()
	go c.Run()
	defer func() { _ = c.Shutdown() }()

	et := EventType{FamilyJMAP, JmapEventCreate}

	ch := NewChannel(16)
	if err := c.RegisterReceiver(ch); err != nil {
		t.Fatalf("RegisterReceiver: %v", err)
	}

	interests := NewInterests()
	interests.Set(et)
	SetInterests(*interests)

	sink := &fakeSink{}
	sub := NewSubscriber("sub-levels", sink, *interests, false)
	if err := c.RegisterSubscriber(sub); err != nil {
		t.Fatalf("RegisterSubscriber: %v", err)
	}

	if err := c.UpdateLevels(map[EventType]Level{et: LevelError}); err != nil {
		t.Fatalf("UpdateLevels: %v", err)
	}

	ch.Send(&Event{Type: et})
	if lvl, next := waitForEventLevel(t, sink, et, 0); lvl != LevelError {
		t.Fatalf("expected overridden level %v, got %v", LevelError, lvl)
	} else {
		if err := c.UpdateLevels(map[EventType]Level{}); err != nil {
			t.Fatalf("UpdateLevels: %v", err)
		}

		ch.Send(&Event{Type: et})
		if lvl, _ := waitForEventLevel(t, sink, et, next); lvl != DefaultLevel(et) {
			t.Fatalf("expected reverted default level %v, got %v", DefaultLevel(et), lvl)
		}
	}
}

// waitForEventLevel polls sink.batches, starting at index after, for the
// next event of type et and returns the Level it was stamped with along
// with the batch index it was found in (for a subsequent call's after).
func waitForEventLevel(t *testing.T, sink *fakeSink, et EventType, after int) (Level, int) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for event of type %v", et)
		default:
		}
		for i := after; i < len(sink.batches); i++ {
			for _, ev := range sink.batches[i] {
				if ev.Event.Type == et {
					return ev.Level, i + 1
				}
			}
		}
		time.Sleep(time.Millisecond)
	}
}

// Overflow policy: with no lossy subscriber bound, Send blocks rather than
// dropping once the ring is full.
func TestChannelSendBlocksWhenLossless(t *testing.T) {
	anyLossySubscriber.Store(false)

	ch := NewChannel(1)
	if ok := ch.Send(&Event{Type: EventType{FamilyNetwork, NetworkListenError}}); !ok {
		t.Fatal("expected first send into an empty ring to succeed")
	}

	done := make(chan struct{})
	go func() {
		ch.Send(&Event{Type: EventType{FamilyNetwork, NetworkProxyError}})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected Send to block while the lossless ring is full")
	case <-time.After(20 * time.Millisecond):
	}

	r := newReceiver(ch)
	if _, ok, _ := r.TryRecv(); !ok {
		t.Fatal("expected to drain the first event")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected the blocked Send to complete once room was made")
	}
}

// Overflow policy: with a lossy subscriber bound, a full ring drops the
// oldest entry to make room rather than blocking the producer.
func TestChannelSendDropsOldestWhenLossy(t *testing.T) {
	anyLossySubscriber.Store(true)
	defer anyLossySubscriber.Store(false)

	ch := NewChannel(1)
	first := &Event{Type: EventType{FamilyNetwork, NetworkListenError}}
	second := &Event{Type: EventType{FamilyNetwork, NetworkProxyError}}

	if ok := ch.Send(first); !ok {
		t.Fatal("expected first send into an empty ring to succeed")
	}
	if ok := ch.Send(second); ok {
		t.Fatal("expected the second send to report a drop-oldest")
	}

	r := newReceiver(ch)
	ev, ok, _ := r.TryRecv()
	if !ok {
		t.Fatal("expected one event to remain in the ring")
	}
	if ev.Type != second.Type {
		t.Fatalf("expected the newest event to survive, got %v", ev.Type)
	}
}
