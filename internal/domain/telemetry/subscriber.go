package telemetry

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrSinkUnavailable is a sentinel a Sink may return when it cannot
// deliver; the collector treats it like any other SendBatch error. An open
// breaker reports gobreaker's own error, not this one.
var ErrSinkUnavailable = errors.New("telemetry: subscriber sink unavailable")

// Sink is the downstream delivery contract a Subscriber flushes batches
// into - a gRPC stream, a websocket connection, an OTel exporter. Kept
// minimal and synchronous: the collector calls SendBatch on its own
// goroutine and waits for it to return, with no timeout of its own.
type Sink interface {
	// SendBatch delivers a batch of enriched events. Returning an error
	// makes the collector evict the subscriber on that same pass.
	SendBatch(batch []*EventDetails) error
	Close() error
}

// Subscriber is the collector-owned registration for one downstream
// consumer, following the same mailbox/batch-drain idiom as
// registry.Cell.
type Subscriber struct {
	ID        string
	Interests Interests
	Lossy     bool

	sink    Sink
	breaker *gobreaker.CircuitBreaker

	pending []*EventDetails
	maxBatch int
}

// NewSubscriber wires a Sink behind a per-subscriber circuit breaker that
// opens after three consecutive SendBatch failures, for 5s before a single
// probe call is allowed through (gobreaker's half-open state). The
// collector evicts the subscriber on the first error SendBatch returns, so
// an evicted subscriber's breaker has seen one failure, not three.
func NewSubscriber(id string, sink Sink, interests Interests, lossy bool) *Subscriber {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "subscriber-" + id,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Subscriber{
		ID:        id,
		Interests: interests,
		Lossy:     lossy,
		sink:      sink,
		breaker:   cb,
		maxBatch:  256,
	}
}

// PushEvent appends an enriched event into this subscriber's pending batch.
// Lossy subscribers drop the oldest pending entry rather than grow past
// maxBatch; lossless subscribers simply grow, bounded only by producer
// ring backpressure upstream.
func (s *Subscriber) PushEvent(id int, ev *EventDetails) {
	if !s.Interests.Get(ev.Event.Type) {
		return
	}

	if s.Lossy && len(s.pending) >= s.maxBatch {
		s.pending = s.pending[1:]
	}
	s.pending = append(s.pending, ev)
}

// SendBatch flushes the pending batch through the breaker-guarded sink.
// Returning an error signals the collector to drop this subscriber.
func (s *Subscriber) SendBatch() error {
	if len(s.pending) == 0 {
		return nil
	}

	batch := s.pending
	s.pending = nil

	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.sink.SendBatch(batch)
	})
	return err
}

func (s *Subscriber) Close() error {
	return s.sink.Close()
}
