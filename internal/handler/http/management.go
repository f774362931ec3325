// Package http serves the REST management API over the same control-plane
// operations the gRPC Control RPC exposes, routed with github.com/go-chi/chi/v5.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/webitel/im-delivery-service/internal/domain/registry"
	"github.com/webitel/im-delivery-service/internal/domain/telemetry"
)

type ManagementHandler struct {
	logger    *slog.Logger
	collector *telemetry.Collector
	hub       registry.Hubber
}

func NewManagementHandler(logger *slog.Logger, collector *telemetry.Collector, hub registry.Hubber) *ManagementHandler {
	return &ManagementHandler{logger: logger, collector: collector, hub: hub}
}

// Router builds the chi mux for this handler's routes.
func (h *ManagementHandler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.healthz)
	r.Get("/counters", h.counters)
	r.Get("/subscribers", h.listSubscribers)
	r.Post("/subscribers", h.createSubscriber)
	r.Patch("/subscribers/{id}", h.updateSubscriber)
	r.Delete("/subscribers/{id}", h.removeSubscriber)
	r.Put("/levels", h.setLevels)
	return r
}

func (h *ManagementHandler) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *ManagementHandler) counters(w http.ResponseWriter, r *http.Request) {
	snapshot := h.collector.Counters().Snapshot()
	out := make(map[string]uint64, len(snapshot))
	for et, v := range snapshot {
		out[et.String()] = v
	}
	writeJSON(w, http.StatusOK, map[string]any{"counters": out})
}

func (h *ManagementHandler) listSubscribers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"subscribers": h.collector.ListSubscribers()})
}

type createSubscriberRequest struct {
	SubscriberID string   `json:"subscriber_id"`
	Lossy        bool     `json:"lossy"`
	Families     []string `json:"families,omitempty"`
}

func (h *ManagementHandler) createSubscriber(w http.ResponseWriter, r *http.Request) {
	var req createSubscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SubscriberID == "" {
		writeError(w, http.StatusBadRequest, errSubscriberIDRequired)
		return
	}

	sink := registry.NewHubSink(h.hub, req.SubscriberID)
	sub := telemetry.NewSubscriber(req.SubscriberID, sink, interestsFromFamilies(req.Families), req.Lossy)
	if err := h.collector.RegisterSubscriber(sub); err != nil {
		writeCollectorError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

type updateSubscriberRequest struct {
	Lossy    bool     `json:"lossy"`
	Families []string `json:"families,omitempty"`
}

func (h *ManagementHandler) updateSubscriber(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateSubscriberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.collector.UpdateSubscriber(id, interestsFromFamilies(req.Families), req.Lossy); err != nil {
		writeCollectorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ManagementHandler) removeSubscriber(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.collector.UnregisterSubscriber(id); err != nil {
		writeCollectorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setLevelsRequest struct {
	Levels map[string]string `json:"levels"`
}

func (h *ManagementHandler) setLevels(w http.ResponseWriter, r *http.Request) {
	var req setLevelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	levels := make(map[telemetry.EventType]telemetry.Level, len(req.Levels))
	for k, v := range req.Levels {
		et, err := telemetry.ParseEventType(k)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		lvl, err := telemetry.ParseLevel(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		levels[et] = lvl
	}

	if err := h.collector.UpdateLevels(levels); err != nil {
		writeCollectorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func interestsFromFamilies(families []string) telemetry.Interests {
	interests := telemetry.NewInterests()
	if len(families) == 0 {
		return *telemetry.AllInterests()
	}
	want := make(map[string]bool, len(families))
	for _, f := range families {
		want[f] = true
	}
	for _, et := range telemetry.AllEventTypes() {
		if want[et.Family.String()] {
			interests.Set(et)
		}
	}
	return *interests
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeCollectorError maps a control-plane error from the collector onto
// the matching HTTP status: unknown subscriber is a 404, a stopped
// collector is a 503, anything else a 500.
func writeCollectorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, telemetry.ErrSubscriberNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, telemetry.ErrCollectorStopped):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
