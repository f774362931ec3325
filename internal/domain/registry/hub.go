package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-delivery-service/internal/domain/telemetry"
)

// Hubber defines the external API for the viewer registry.
type Hubber interface {
	Broadcast(subscriberID string, batch []*telemetry.EventDetails) bool
	Register(conn Connector)
	Unregister(subscriberID string, connID uuid.UUID)
	IsWatched(subscriberID string) bool
	Shutdown()
}

// Hub implements Hubber using a Virtual Cell (Actor) architecture, keyed
// by telemetry subscriber id.
type Hub struct {
	cells sync.Map

	evictionInterval time.Duration
	idleTimeout      time.Duration
	mailboxSize      int
	stopCh           chan struct{}
	logger           *slog.Logger
}

// NewHub initializes the registry with functional options and starts the janitor process.
func NewHub(logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{
		evictionInterval: 1 * time.Minute,
		idleTimeout:      5 * time.Minute,
		mailboxSize:      256,
		stopCh:           make(chan struct{}),
		logger:           logger,
	}

	for _, opt := range opts {
		opt(h)
	}

	go h.runEvictor()
	return h
}

// IsWatched reports whether subscriberID currently has a cell in the hub.
// A cell stays until the evictor reaps it, so it may have no viewer
// connection attached.
func (h *Hub) IsWatched(subscriberID string) bool {
	_, ok := h.cells.Load(subscriberID)
	return ok
}

// Broadcast dispatches a batch to the subscriber's cell mailbox. Called
// from a telemetry.Sink implementation wrapping this hub.
func (h *Hub) Broadcast(subscriberID string, batch []*telemetry.EventDetails) bool {
	if val, ok := h.cells.Load(subscriberID); ok {
		if cell, ok := val.(Celler); ok {
			return cell.Push(batch)
		}
	}
	return false
}

// Register performs an idempotent registration of a new viewer connection.
func (h *Hub) Register(conn Connector) {
	sID := conn.GetSubscriberID()
	val, _ := h.cells.LoadOrStore(sID, NewCell(sID, h.mailboxSize))

	if cell, ok := val.(Celler); ok {
		cell.Attach(conn)
	}
}

// Unregister removes a connection from a cell. Cell reclamation itself is
// handled asynchronously by the evictor.
func (h *Hub) Unregister(subscriberID string, connID uuid.UUID) {
	if val, ok := h.cells.Load(subscriberID); ok {
		if cell, ok := val.(Celler); ok {
			cell.Detach(connID)
		}
	}
}

func (h *Hub) runEvictor() {
	ticker := time.NewTicker(h.evictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.performEviction()
		}
	}
}

func (h *Hub) performEviction() {
	reaped := 0
	h.cells.Range(func(key, value any) bool {
		if cell, ok := value.(Celler); ok {
			if cell.IsIdle(h.idleTimeout) {
				cell.Stop()
				h.cells.Delete(key)
				reaped++
			}
		}
		return true
	})

	if reaped > 0 {
		h.logger.Info("VIEWER_CELLS_REAPED", "count", reaped)
	}
}

// Shutdown gracefully stops the hub and all managed cells.
func (h *Hub) Shutdown() {
	close(h.stopCh)
	h.cells.Range(func(key, value any) bool {
		if cell, ok := value.(Celler); ok {
			cell.Stop()
		}
		return true
	})
}
