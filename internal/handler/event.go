package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sakif/volunteer-hub/internal/auth"
	"github.com/sakif/volunteer-hub/internal/service"
)

// EventHandler serves /api/events. It decodes requests and writes envelopes;
// every rule lives in service.EventService.
type EventHandler struct {
	svc     *service.EventService
	maxBody int64
	logger  *zap.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(svc *service.EventService, maxBody int64, logger *zap.Logger) *EventHandler {
	return &EventHandler{svc: svc, maxBody: maxBody, logger: logger}
}

// HandleCreate creates an event owned by the caller.
//
// HTTP: POST /api/events
// Auth: Required
// REQUEST BODY: {"title", "description", "date", "location", "category", "maxParticipants"?}
func (h *EventHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.CreateEventInput
	if err := decodeJSON(w, r, h.maxBody, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	event, err := h.svc.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusCreated, "Event created successfully", event)
}

// HandleList returns all events, soonest first.
//
// HTTP: GET /api/events?category=a,b&category=c&status=upcoming
func (h *EventHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := h.svc.List(r.Context(), service.ListEventsInput{
		Categories: q["category"],
		Status:     q.Get("status"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "", events)
}

// HandleGet returns one event.
//
// HTTP: GET /api/events/{id}
func (h *EventHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	event, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "", event)
}

// HandleUpdate edits an event. Only its creator may do this.
//
// HTTP: PUT /api/events/{id}
// Auth: Required
// REQUEST BODY: any of {"title", "description", "status", "location"}
func (h *EventHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.UpdateEventInput
	if err := decodeJSON(w, r, h.maxBody, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	event, err := h.svc.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "Event updated successfully", event)
}

// HandleJoin adds the caller to an event.
//
// HTTP: POST /api/events/{id}/join
// Auth: Required
func (h *EventHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	event, err := h.svc.Join(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "Successfully joined event", event)
}
