package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sakif/volunteer-hub/internal/auth"
	"github.com/sakif/volunteer-hub/internal/service"
)

// HelpRequestHandler serves /api/help-requests.
type HelpRequestHandler struct {
	svc     *service.HelpRequestService
	maxBody int64
	logger  *zap.Logger
}

// NewHelpRequestHandler creates a HelpRequestHandler.
func NewHelpRequestHandler(svc *service.HelpRequestService, maxBody int64, logger *zap.Logger) *HelpRequestHandler {
	return &HelpRequestHandler{svc: svc, maxBody: maxBody, logger: logger}
}

// HandleCreate posts a help request.
//
// HTTP: POST /api/help-requests
// Auth: Required
// REQUEST BODY: {"title", "description", "location", "urgencyLevel", "volunteersNeeded"}
func (h *HelpRequestHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.CreateHelpRequestInput
	if err := decodeJSON(w, r, h.maxBody, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	req, err := h.svc.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusCreated, "Help request created successfully", req)
}

// HandleList returns help requests, newest first.
//
// HTTP: GET /api/help-requests?urgency=high&status=open
func (h *HelpRequestHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reqs, err := h.svc.List(r.Context(), service.ListHelpRequestsInput{
		Urgency: q.Get("urgency"),
		Status:  q.Get("status"),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "", reqs)
}

// HandleGet returns one help request.
//
// HTTP: GET /api/help-requests/{id}
func (h *HelpRequestHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "", req)
}

// HandleUpdate edits a help request. Requester only.
//
// HTTP: PUT /api/help-requests/{id}
// Auth: Required
func (h *HelpRequestHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.UpdateHelpRequestInput
	if err := decodeJSON(w, r, h.maxBody, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	req, err := h.svc.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "Help request updated successfully", req)
}

// HandleVolunteer signs the caller up.
//
// HTTP: POST /api/help-requests/{id}/volunteer
// Auth: Required
func (h *HelpRequestHandler) HandleVolunteer(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	req, err := h.svc.Volunteer(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "Successfully volunteered", req)
}
