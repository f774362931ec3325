package telemetry

import "sync"

// updateKind discriminates the control-plane Update union.
type updateKind uint8

const (
	updateRegisterReceiver updateKind = iota
	updateRegisterSubscriber
	updateUnregisterSubscriber
	updateUpdateSubscriber
	updateUpdateLevels
	updateShutdown
)

// update is a single control-plane mutation, queued by any goroutine and
// drained only by the collector's own goroutine: producers and API callers
// never touch collector-owned state directly, they enqueue an update and
// (optionally) wake the collector.
type update struct {
	kind       updateKind
	receiver   *Receiver
	subscriber *Subscriber
	id         string
	interests  Interests
	lossy      bool
	levels     map[EventType]Level
}

// controlQueue is the mutex-guarded inbox the collector drains on every
// wake. The mutex section is only ever "append one element" or "drain
// everything" - never held across any blocking work.
type controlQueue struct {
	mu      sync.Mutex
	pending []update
}

func (q *controlQueue) push(u update) {
	q.mu.Lock()
	q.pending = append(q.pending, u)
	q.mu.Unlock()
	markControlUpdate()
}

func (q *controlQueue) drain() []update {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	return out
}

// activeSubscribers is a second, independently-locked projection of
// currently-registered subscriber ids - kept separate from the collector's
// own subscriber slice so ListSubscribers (management API, dashboards)
// never has to hop onto the collector goroutine to answer a read-only
// query.
type activeSubscribers struct {
	mu  sync.Mutex
	ids []string
}

func (a *activeSubscribers) add(id string) {
	a.mu.Lock()
	a.ids = append(a.ids, id)
	a.mu.Unlock()
}

func (a *activeSubscribers) has(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, v := range a.ids {
		if v == id {
			return true
		}
	}
	return false
}

func (a *activeSubscribers) remove(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, v := range a.ids {
		if v == id {
			a.ids = append(a.ids[:i], a.ids[i+1:]...)
			return
		}
	}
}

func (a *activeSubscribers) list() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.ids))
	copy(out, a.ids)
	return out
}
