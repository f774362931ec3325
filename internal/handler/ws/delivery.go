// Package ws serves the dashboard viewer transport: a websocket that
// streams a subscriber's enriched event batches as JSON frames, keyed by a
// telemetry subscriber id supplied as a query parameter.
package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/webitel/im-delivery-service/internal/domain/registry"
	"github.com/webitel/im-delivery-service/internal/domain/telemetry"
	"github.com/webitel/im-delivery-service/internal/handler/marshaller"
)

type WSHandler struct {
	logger    *slog.Logger
	collector *telemetry.Collector
	hub       registry.Hubber
	upgrader  websocket.Upgrader
}

func NewWSHandler(logger *slog.Logger, collector *telemetry.Collector, hub registry.Hubber) *WSHandler {
	return &WSHandler{
		logger:    logger,
		collector: collector,
		hub:       hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subscriberID := r.URL.Query().Get("subscriber_id")
	if subscriberID == "" {
		http.Error(w, "subscriber_id is required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WS_UPGRADE_FAILED", "err", err)
		return
	}
	defer ws.Close()

	if !h.hub.IsWatched(subscriberID) {
		sink := registry.NewHubSink(h.hub, subscriberID)
		sub := telemetry.NewSubscriber(subscriberID, sink, *telemetry.AllInterests(), true)
		if err := h.collector.RegisterSubscriber(sub); err != nil {
			h.logger.Error("WS_SUBSCRIBE_FAILED", "subscriber_id", subscriberID, "err", err)
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
			return
		}
	}

	conn := registry.NewConnector(r.Context(), subscriberID, 64)
	h.hub.Register(conn)
	defer func() {
		h.hub.Unregister(subscriberID, conn.GetID())
		conn.Close()
	}()

	h.logger.Info("WS_OPENED", "subscriber_id", subscriberID, "conn_id", conn.GetID())

	for {
		select {
		case <-r.Context().Done():
			return
		case batch, ok := <-conn.Recv():
			if !ok {
				return
			}

			data, err := marshaller.MarshalBatch(batch)
			if err != nil {
				h.logger.Error("WS_MARSHAL_FAILED", "err", err)
				continue
			}

			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warn("WS_SEND_FAILED", "err", err)
				return
			}
		}
	}
}
