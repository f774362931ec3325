/*
Package registry provides a high-performance event distribution system based on the Actor Model.

Key Architectural Concepts:
  - Virtual Cells: every actively-viewed subscriber id is represented by an
    isolated 'Cell' (Actor) that encapsulates all concurrent viewer
    connections (gRPC streams, websockets) watching its event stream.
  - Decoupling & Backpressure: through the use of internal per-subscriber
    mailboxes, the package ensures that slow network consumers do not block
    the collector's own subscriber batch flush.
  - Concurrency Management: utilizes lock-free lookups via sync.Map and
    fine-grained sharded locking within individual cells to eliminate global
    mutex contention.
*/
package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-delivery-service/internal/domain/telemetry"
)

// Celler defines the internal API for subscriber-specific fan-out units.
type Celler interface {
	Push(batch []*telemetry.EventDetails) bool
	Attach(conn Connector)
	Detach(connID uuid.UUID) bool
	IsIdle(timeout time.Duration) bool
	Stop()
}

// Cell fans a single subscriber's batch stream out to every viewer
// connection currently attached to it.
type Cell struct {
	subscriberID string

	mailbox chan []*telemetry.EventDetails

	sessions map[uuid.UUID]Connector
	mu       sync.RWMutex

	doneCh chan struct{}

	lastActivityUnix int64
}

func NewCell(subscriberID string, bufferSize int) *Cell {
	c := &Cell{
		subscriberID:     subscriberID,
		mailbox:          make(chan []*telemetry.EventDetails, bufferSize),
		sessions:         make(map[uuid.UUID]Connector),
		doneCh:           make(chan struct{}),
		lastActivityUnix: time.Now().Unix(),
	}
	go c.loop()
	return c
}

func (c *Cell) touch() {
	atomic.StoreInt64(&c.lastActivityUnix, time.Now().Unix())
}

// IsIdle checks if the cell can be reclaimed based on session count and inactivity
func (c *Cell) IsIdle(timeout time.Duration) bool {
	c.mu.RLock()
	hasSessions := len(c.sessions) > 0
	c.mu.RUnlock()

	if hasSessions {
		return false
	}

	lastActivity := time.Unix(atomic.LoadInt64(&c.lastActivityUnix), 0)
	return time.Since(lastActivity) > timeout
}

func (c *Cell) Push(batch []*telemetry.EventDetails) bool {
	c.touch()
	select {
	case c.mailbox <- batch:
		return true
	default:
		// Drop the batch if the mailbox is full to protect the collector's
		// own flush loop - a stalled viewer cell must never backpressure
		// the subscriber it belongs to.
		return false
	}
}

func (c *Cell) Attach(conn Connector) {
	c.mu.Lock()
	c.sessions[conn.GetID()] = conn
	c.mu.Unlock()
	c.touch()
}

func (c *Cell) Detach(connID uuid.UUID) bool {
	c.mu.Lock()
	delete(c.sessions, connID)
	isEmpty := len(c.sessions) == 0
	c.mu.Unlock()
	c.touch()
	return isEmpty
}

func (c *Cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case batch := <-c.mailbox:
			// Batch-draining: once awakened, drain up to 64 pending
			// batches before returning to the expensive select, smoothing
			// out bursts instead of re-selecting per batch.
			c.deliver(batch)

			for range 64 {
				select {
				case next := <-c.mailbox:
					c.deliver(next)
				default:
					goto wait
				}
			}
		wait:
		}
	}
}

// deliver broadcasts a batch to every viewer connection attached to this cell.
func (c *Cell) deliver(batch []*telemetry.EventDetails) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.sessions) == 0 {
		return
	}

	for _, conn := range c.sessions {
		conn.Send(batch, 250*time.Millisecond)
	}
}

func (c *Cell) Stop() {
	close(c.doneCh)

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, conn := range c.sessions {
		conn.Close()
		delete(c.sessions, id)
	}
}
