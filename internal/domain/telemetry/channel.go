package telemetry

import "sync/atomic"

// channelFlags carries the wake-reason bitmask the collector goroutine
// checks on every loop iteration. collectorWake (below) is the idiomatic
// stand-in for a park/unpark wakeup, matching the mailbox wakeup
// registry.Cell's draining loop uses - it is a single process-wide channel
// since there is exactly one collector goroutine per process, the same way
// globalInterests is a single process-wide gate.
var channelFlags atomic.Uint32

const (
	channelControlMarker uint32 = 1 << 0
	channelEventMarker    uint32 = 1 << 1
)

var collectorWake = make(chan struct{}, 1)

func wakeCollector() {
	select {
	case collectorWake <- struct{}{}:
	default:
	}
}

func markControlUpdate() {
	channelFlags.Or(channelControlMarker)
	wakeCollector()
}

// markEventPush sets the event-data-present bit and unparks the collector -
// the producer-side half of "any push that transitions the global from all
// rings empty to data present wakes the collector thread".
func markEventPush() {
	channelFlags.Or(channelEventMarker)
	wakeCollector()
}

func swapChannelFlags() uint32 {
	return channelFlags.Swap(0)
}

// anyLossySubscriber reports whether any currently-registered subscriber is
// lossy, recomputed by the collector goroutine on every subscriber
// registration/update/removal. It gates Channel.Send's overflow policy.
var anyLossySubscriber atomic.Bool

// Channel is a per-producer bounded ring of raw events: the collector is the
// sole consumer. Capacity is fixed at construction. Overflow policy depends
// on whether any bound subscriber is lossy: lossy subscribers get
// drop-oldest (the producer never blocks), otherwise Send blocks the
// producer until the collector makes room - a lossless subscriber must never
// silently miss an event.
type Channel struct {
	events chan *Event
}

func NewChannel(capacity int) *Channel {
	return &Channel{events: make(chan *Event, capacity)}
}

// Send enqueues a raw event, applying the overflow policy above. Returns
// false only when an event was dropped (the oldest, to make room) to signal
// callers that might want to bump a drop counter; true in every other case,
// including when Send had to block.
func (c *Channel) Send(e *Event) bool {
	if !anyLossySubscriber.Load() {
		c.events <- e
		markEventPush()
		return true
	}

	select {
	case c.events <- e:
		markEventPush()
		return true
	default:
	}

	select {
	case <-c.events:
	default:
	}
	select {
	case c.events <- e:
	default:
	}
	markEventPush()
	return false
}

// Receiver is the collector-side handle to one producer's Channel.
type Receiver struct {
	ch *Channel
}

func newReceiver(ch *Channel) *Receiver {
	return &Receiver{ch: ch}
}

// TryRecv drains at most one event without blocking. ok is false once the
// ring is momentarily empty; closed is true once the producer side will
// never send again.
func (r *Receiver) TryRecv() (ev *Event, ok bool, closed bool) {
	select {
	case e, open := <-r.ch.events:
		if !open {
			return nil, false, true
		}
		return e, true, false
	default:
		return nil, false, false
	}
}

// Close closes the underlying channel, used when a producer shuts down and
// wants its Receiver reaped on the collector's next closed-receiver sweep.
func (c *Channel) Close() {
	close(c.events)
}
