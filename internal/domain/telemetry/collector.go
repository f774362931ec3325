package telemetry

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
)

// GlobalInterests is the process-wide "does anything care about this event
// type at all" gate. Producers call HasInterest before doing any work to
// build an Event - this is the cheap short-circuit that keeps a disabled
// telemetry subsystem nearly free.
var globalInterests = NewAtomicBitset(TotalEventCount)

// HasInterest reports whether any currently-registered subscriber's
// interests include e. Safe to call from any producer goroutine with no
// locking - it's a handful of atomic loads.
func HasInterest(e EventType) bool {
	return globalInterests.Get(e.ID())
}

// IsEnabled reports whether telemetry collection is doing anything at all.
func IsEnabled() bool {
	return !globalInterests.IsEmpty()
}

// SetInterests replaces the global interest gate outright: any non-empty
// interest set forces in the four span-anchor event types, since a
// subscriber wanting any nested event needs the spans it's nested under
// tracked too.
func SetInterests(interests Interests) {
	if !interests.IsEmpty() {
		interests.Set(EvConnStart)
		interests.Set(EvConnEnd)
		interests.Set(EvAttemptStart)
		interests.Set(EvAttemptEnd)
	}
	globalInterests.Update(interests.ToGlobalBitset())
}

// UnionInterests adds interests into the global gate without clearing
// existing bits - used when a new subscriber registers alongside others.
func UnionInterests(interests Interests) {
	globalInterests.Union(interests.ToGlobalBitset())
}

// collectorState names the phase the single collector goroutine is in.
// Run records it in Collector.state; nothing outside Run reads it (it is
// neither logged nor exposed by the management API), and the control flow
// in Run is a straight-line loop, not a formal state machine with
// transition guards.
type collectorState uint8

const (
	stateIdle collectorState = iota
	stateUpdating
	stateDraining
	stateShuttingDown
)

func (s collectorState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateUpdating:
		return "updating"
	case stateDraining:
		return "draining"
	case stateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Collector owns every piece of cross-cutting telemetry state - receivers,
// subscribers, the levels table and the span table - on a single pinned
// goroutine, so none of it needs a lock. All mutation flows through the
// control queue; all the goroutine itself ever does is drain that queue,
// drain receivers, and flush subscriber batches.
type Collector struct {
	logger *slog.Logger

	receivers   []*Receiver
	subscribers []*Subscriber
	levels      [TotalEventCount]Level
	spans       *spanTable
	counters    *CounterTable

	queue  *controlQueue
	active *activeSubscribers

	stopped       chan struct{}
	done          atomic.Bool
	finalFlushErr error
	state         collectorState

	// StrictSpanChecking panics on an unregistered non-zero span id instead
	// of logging and continuing. Defaulting to false is the
	// production-safe choice for a long-running service; set true in tests
	// to catch producer bugs early. See DESIGN.md.
	StrictSpanChecking bool
}

// NewCollector constructs a Collector with every event type at its default
// level. Run must be called (typically from cmd's fx.Lifecycle OnStart) to
// start the dedicated goroutine.
func NewCollector(logger *slog.Logger) *Collector {
	c := &Collector{
		logger:   logger,
		spans:    newSpanTable(),
		counters: NewCounterTable(),
		queue:    &controlQueue{},
		active:   &activeSubscribers{},
		stopped:  make(chan struct{}),
	}
	for _, et := range AllEventTypes() {
		c.levels[et.ID()] = DefaultLevel(et)
	}
	return c
}

// reload marks a control update pending and wakes the collector goroutine
// through the same process-wide wake primitive a producer's Channel.Send
// uses.
func (c *Collector) reload() {
	markControlUpdate()
}

// RegisterReceiver attaches a new producer Channel to the collector. Safe
// to call from any goroutine.
func (c *Collector) RegisterReceiver(ch *Channel) error {
	if c.done.Load() {
		return ErrCollectorStopped
	}
	c.queue.push(update{kind: updateRegisterReceiver, receiver: newReceiver(ch)})
	c.reload()
	return nil
}

// RegisterSubscriber enqueues a new Subscriber and folds its interests into
// the global gate. Returns once the update is queued, not once the
// collector has processed it - callers that need a synchronous
// registration (e.g. the gRPC Subscribe handler needing its Sink attached
// before returning) should treat registration as eventually-consistent
// within one collector loop iteration.
func (c *Collector) RegisterSubscriber(s *Subscriber) error {
	if c.done.Load() {
		return ErrCollectorStopped
	}
	globalInterests.Union(s.Interests.ToGlobalBitset())
	c.queue.push(update{kind: updateRegisterSubscriber, subscriber: s})
	c.reload()
	return nil
}

func (c *Collector) UnregisterSubscriber(id string) error {
	if c.done.Load() {
		return ErrCollectorStopped
	}
	if !c.active.has(id) {
		return ErrSubscriberNotFound
	}
	c.queue.push(update{kind: updateUnregisterSubscriber, id: id})
	c.reload()
	return nil
}

func (c *Collector) UpdateSubscriber(id string, interests Interests, lossy bool) error {
	if c.done.Load() {
		return ErrCollectorStopped
	}
	if !c.active.has(id) {
		return ErrSubscriberNotFound
	}
	globalInterests.Union(interests.ToGlobalBitset())
	c.queue.push(update{kind: updateUpdateSubscriber, id: id, interests: interests, lossy: lossy})
	c.reload()
	return nil
}

func (c *Collector) UpdateLevels(levels map[EventType]Level) error {
	if c.done.Load() {
		return ErrCollectorStopped
	}
	c.queue.push(update{kind: updateUpdateLevels, levels: levels})
	c.reload()
	return nil
}

// Shutdown requests the collector loop to flush remaining subscriber
// batches and exit. Blocks until Run has returned, then reports every error
// hit while flushing a subscriber's final batch, aggregated with
// go.uber.org/multierr rather than silently discarded.
func (c *Collector) Shutdown() error {
	c.queue.push(update{kind: updateShutdown})
	c.reload()
	<-c.stopped
	return c.finalFlushErr
}

// ListSubscribers answers from the lock-guarded projection, never hopping
// onto the collector goroutine.
func (c *Collector) ListSubscribers() []string {
	return c.active.list()
}

// Counters exposes the lock-free per-type counter table for the management
// API / stats dashboard.
func (c *Collector) Counters() *CounterTable {
	return c.counters
}

// Run is the collector's single dedicated goroutine body. Callers should
// start it with `go collector.Run()` exactly once; it pins itself to an OS
// thread for the lifetime of the process.
func (c *Collector) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	doContinue := true
	c.state = stateUpdating
	doContinue = c.applyUpdates()

	for doContinue {
		switch swapChannelFlags() {
		case 0:
			c.state = stateIdle
			<-collectorWake
		default:
			c.state = stateUpdating
			doContinue = c.applyUpdates()
		}

		if !doContinue {
			break
		}

		c.state = stateDraining
		c.drainReceivers()

		if len(c.subscribers) > 0 {
			kept := c.subscribers[:0]
			for _, s := range c.subscribers {
				if err := s.SendBatch(); err != nil {
					c.active.remove(s.ID)
					c.logger.Warn("SUBSCRIBER_EVICTED", "id", s.ID, "err", err)
					continue
				}
				kept = append(kept, s)
			}
			c.subscribers = kept
		}
	}

	c.state = stateShuttingDown
	var flushErr error
	for _, s := range c.subscribers {
		if err := s.SendBatch(); err != nil {
			flushErr = multierr.Append(flushErr, fmt.Errorf("subscriber %s: %w", s.ID, err))
		}
	}
	c.subscribers = nil
	c.finalFlushErr = flushErr
	c.done.Store(true)
	close(c.stopped)
}

func (c *Collector) drainReceivers() {
	now := time.Now().Unix()

	var closedIdx []int
	for idx, r := range c.receivers {
		for {
			raw, ok, closed := r.TryRecv()
			if closed {
				closedIdx = append(closedIdx, idx)
				break
			}
			if !ok {
				break
			}
			c.ingest(raw, now)
		}
	}

	if len(closedIdx) > 0 {
		kept := c.receivers[:0]
		closedSet := make(map[int]bool, len(closedIdx))
		for _, i := range closedIdx {
			closedSet[i] = true
		}
		for i, r := range c.receivers {
			if !closedSet[i] {
				kept = append(kept, r)
			}
		}
		c.receivers = kept
	}
}

// ingest stamps a raw Event into EventDetails, performs span
// tracking/joining, records the per-type counter and fans the result out
// to every subscriber's pending batch - the hot loop body of the collector.
func (c *Collector) ingest(raw *Event, now int64) {
	id := raw.Type.ID()
	c.counters.Record(raw.Type)

	details := &EventDetails{
		Event:     raw,
		Level:     c.levels[id],
		Timestamp: now,
	}

	switch raw.Type {
	case EvConnStart, EvAttemptStart:
		spanID, ok := raw.SpanID()
		if !ok {
			c.logger.Error("MISSING_SPAN_ID", "type", raw.Type.String())
			return
		}
		c.spans.put(spanID, details)
		if c.spans.len() > StaleSpanCheckWatermark {
			c.spans.sweepStale(now)
		}

	case EvConnEnd, EvAttemptEnd:
		spanID, ok := raw.SpanID()
		if !ok {
			c.logger.Error("MISSING_SPAN_ID", "type", raw.Type.String())
			return
		}
		if span, found := c.spans.remove(spanID); found {
			details.Span = span
		} else if spanID != 0 {
			c.handleUnregisteredSpan(details)
		}

	default:
		if spanID, ok := raw.SpanID(); ok {
			if span, found := c.spans.get(spanID); found {
				details.Span = span
			} else if spanID != 0 {
				c.handleUnregisteredSpan(details)
			}
		}
	}

	for _, s := range c.subscribers {
		s.PushEvent(id, details)
	}
}

// refreshLossyGate recomputes anyLossySubscriber from the current
// subscriber set. Called only from the collector goroutine after any
// subscriber registration/removal/update, so c.subscribers needs no lock.
func (c *Collector) refreshLossyGate() {
	lossy := false
	for _, s := range c.subscribers {
		if s.Lossy {
			lossy = true
			break
		}
	}
	anyLossySubscriber.Store(lossy)
}

// handleUnregisteredSpan panics or logs on an unregistered non-zero span
// id, per StrictSpanChecking (see its doc comment).
func (c *Collector) handleUnregisteredSpan(details *EventDetails) {
	if c.StrictSpanChecking {
		panic(ErrMissingSpanID)
	}
	c.logger.Warn("UNREGISTERED_SPAN_ID", "type", details.Event.Type.String())
}

func (c *Collector) applyUpdates() bool {
	for _, u := range c.queue.drain() {
		switch u.kind {
		case updateRegisterReceiver:
			c.receivers = append(c.receivers, u.receiver)

		case updateRegisterSubscriber:
			c.active.add(u.subscriber.ID)
			c.subscribers = append(c.subscribers, u.subscriber)
			c.refreshLossyGate()

		case updateUnregisterSubscriber:
			c.active.remove(u.id)
			kept := c.subscribers[:0]
			for _, s := range c.subscribers {
				if s.ID != u.id {
					kept = append(kept, s)
				}
			}
			c.subscribers = kept
			c.refreshLossyGate()

		case updateUpdateSubscriber:
			for _, s := range c.subscribers {
				if s.ID == u.id {
					s.Interests = u.interests
					s.Lossy = u.lossy
					break
				}
			}
			c.refreshLossyGate()

		case updateUpdateLevels:
			for _, et := range AllEventTypes() {
				if lvl, ok := u.levels[et]; ok {
					c.levels[et.ID()] = lvl
				} else {
					c.levels[et.ID()] = DefaultLevel(et)
				}
			}

		case updateShutdown:
			return false
		}
	}
	return true
}
