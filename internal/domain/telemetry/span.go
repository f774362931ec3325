package telemetry

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// Stale-span sweep constants.
const (
	StaleSpanCheckWatermark = 8000
	SpanMaxHoldSeconds      = 86400
)

// spanTable tracks in-flight spans keyed by span id. The collector's
// time-watermark sweep is the primary reclamation mechanism; the LRU
// ceiling is a second line of defense against a runaway producer that
// never emits an End event and also never trips the watermark check
// between sweeps (e.g. a long quiet period followed by a burst), evicting
// the coldest entries instead of letting the map grow unbounded.
type spanTable struct {
	spans *lru.Cache[uint64, *EventDetails]
}

func newSpanTable() *spanTable {
	// Capacity is deliberately generous relative to the watermark: the
	// watermark sweep should almost always reclaim stale spans first, the
	// LRU eviction is the backstop, not the common path.
	c, _ := lru.New[uint64, *EventDetails](StaleSpanCheckWatermark * 4)
	return &spanTable{spans: c}
}

func (t *spanTable) put(id uint64, ev *EventDetails) {
	t.spans.Add(id, ev)
}

func (t *spanTable) get(id uint64) (*EventDetails, bool) {
	return t.spans.Peek(id)
}

func (t *spanTable) remove(id uint64) (*EventDetails, bool) {
	v, ok := t.spans.Peek(id)
	if ok {
		t.spans.Remove(id)
	}
	return v, ok
}

func (t *spanTable) len() int {
	return t.spans.Len()
}

// sweepStale drops every tracked span whose timestamp is older than
// SpanMaxHoldSeconds relative to now, mirroring the Rust collector's
// active_spans.retain call triggered once len() crosses the watermark.
func (t *spanTable) sweepStale(now int64) {
	for _, id := range t.spans.Keys() {
		ev, ok := t.spans.Peek(id)
		if !ok {
			continue
		}
		if now-ev.Timestamp >= SpanMaxHoldSeconds {
			t.spans.Remove(id)
		}
	}
}
