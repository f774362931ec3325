package telemetry

import "sync/atomic"

// AtomicCounter is a relaxed-ordering counter carrying its own identity
// metadata (id/description/unit) alongside the value, one per EventType.
// Go's atomic package has no weaker-than-sequential option, so "relaxed"
// here just means: never used for synchronization, only for approximate
// observability totals. Decrement/DecrementBy/IsActive exist because a
// counter can also track a currently-active gauge (e.g. open connections),
// not just a monotonic tally.
type AtomicCounter struct {
	id          string
	description string
	unit        string
	v           atomic.Uint64
}

func newAtomicCounter(id, description, unit string) AtomicCounter {
	return AtomicCounter{id: id, description: description, unit: unit}
}

func (c *AtomicCounter) ID() string          { return c.id }
func (c *AtomicCounter) Description() string { return c.description }
func (c *AtomicCounter) Unit() string        { return c.unit }

func (c *AtomicCounter) Add(delta uint64) {
	c.v.Add(delta)
}

func (c *AtomicCounter) Inc() {
	c.v.Add(1)
}

// Decrement reduces the counter by one. Two's-complement addition is the
// idiomatic way to subtract on an atomic.Uint64, which has no signed
// equivalent.
func (c *AtomicCounter) Decrement() {
	c.DecrementBy(1)
}

func (c *AtomicCounter) DecrementBy(delta uint64) {
	c.v.Add(^(delta - 1))
}

func (c *AtomicCounter) Load() uint64 {
	return c.v.Load()
}

// IsActive reports whether the counter currently holds a positive value -
// meaningful for counters used as an active-count gauge rather than a
// monotonic tally.
func (c *AtomicCounter) IsActive() bool {
	return c.v.Load() > 0
}

func (c *AtomicCounter) Reset() uint64 {
	return c.v.Swap(0)
}

// CounterTable is a fixed-size array of AtomicCounter, one per EventType
// slot, indexed by EventType.ID(). It backs the "cheap external inspection"
// aggregate counts the management API exposes without touching the
// collector's single goroutine.
type CounterTable struct {
	counters [TotalEventCount]AtomicCounter
}

func NewCounterTable() *CounterTable {
	t := &CounterTable{}
	for _, et := range AllEventTypes() {
		t.counters[et.ID()] = newAtomicCounter(
			et.String(),
			"count of "+et.String()+" events",
			"1",
		)
	}
	return t
}

func (t *CounterTable) Record(e EventType) {
	t.counters[e.ID()].Inc()
}

func (t *CounterTable) Get(e EventType) uint64 {
	return t.counters[e.ID()].Load()
}

func (t *CounterTable) Snapshot() map[EventType]uint64 {
	out := make(map[EventType]uint64, TotalEventCount)
	for _, et := range AllEventTypes() {
		if v := t.counters[et.ID()].Load(); v > 0 {
			out[et] = v
		}
	}
	return out
}
