// Package registry implements a Hub/Cell/Connector actor trio as a viewer
// registry: any number of dashboard or gRPC-stream connections can attach
// under the same subscriber id and receive the identical enriched-event
// batch stream.
package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-delivery-service/internal/domain/telemetry"
)

var _ Connector = (*connect)(nil)

// Connector is the per-viewer-connection handle a transport (gRPC stream,
// websocket) holds: a batch arrives on Recv(), Close releases it back to
// the pool.
type Connector interface {
	GetID() uuid.UUID
	GetSubscriberID() string
	Send(batch []*telemetry.EventDetails, timeout time.Duration) bool
	Recv() <-chan []*telemetry.EventDetails
	Close()
}

type connect struct {
	id           uuid.UUID
	subscriberID string
	createdAt    time.Time

	ctx      context.Context
	cancelFn context.CancelFunc

	sendCh chan []*telemetry.EventDetails

	closeOnce    sync.Once
	droppedCount uint64
}

var connectPool = sync.Pool{
	New: func() any { return &connect{} },
}

// NewConnector acquires a pooled Connector for subscriberID, reusing
// pooled instances to keep steady-state allocations near zero per viewer
// attach/detach cycle.
func NewConnector(ctx context.Context, subscriberID string, bufferSize int) Connector {
	c := connectPool.Get().(*connect)
	c.reset(ctx, subscriberID, bufferSize)
	return c
}

func (c *connect) reset(ctx context.Context, subscriberID string, bufferSize int) {
	childCtx, cancel := context.WithCancel(ctx)
	*c = connect{
		id:           uuid.New(),
		subscriberID: subscriberID,
		createdAt:    time.Now(),
		ctx:          childCtx,
		cancelFn:     cancel,
		sendCh:       make(chan []*telemetry.EventDetails, bufferSize),
	}
}

func (c *connect) GetID() uuid.UUID                       { return c.id }
func (c *connect) GetSubscriberID() string                { return c.subscriberID }
func (c *connect) Recv() <-chan []*telemetry.EventDetails { return c.sendCh }

// Send pushes a batch into the viewer's mailbox, waiting up to timeout for
// room before giving up, so one slow viewer never stalls the hub.
func (c *connect) Send(batch []*telemetry.EventDetails, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- batch:
		return true
	case <-ctx.Done():
		atomic.AddUint64(&c.droppedCount, 1)
		return false
	}
}

// Close idempotently tears the connector down and recycles it.
func (c *connect) Close() {
	c.closeOnce.Do(func() {
		c.cancelFn()
		if c.sendCh != nil {
			close(c.sendCh)
		}
		c.sendCh = nil
		connectPool.Put(c)
	})
}
