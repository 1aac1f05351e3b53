package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sakif/volunteer-hub/internal/auth"
	"github.com/sakif/volunteer-hub/internal/service"
)

// TeamHandler serves /api/teams.
type TeamHandler struct {
	svc     *service.TeamService
	maxBody int64
	logger  *zap.Logger
}

// NewTeamHandler creates a TeamHandler.
func NewTeamHandler(svc *service.TeamService, maxBody int64, logger *zap.Logger) *TeamHandler {
	return &TeamHandler{svc: svc, maxBody: maxBody, logger: logger}
}

// HandleCreate creates a team with the caller as admin.
//
// HTTP: POST /api/teams
// Auth: Required
func (h *TeamHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.CreateTeamInput
	if err := decodeJSON(w, r, h.maxBody, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	team, err := h.svc.Create(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusCreated, "Team created successfully", team)
}

// HandleList returns the teams visible to the caller.
//
// HTTP: GET /api/teams?category=x
// Auth: Optional (members also see their private teams)
func (h *TeamHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	teams, err := h.svc.List(r.Context(), userID, r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "", teams)
}

// HandleGet returns one team.
//
// HTTP: GET /api/teams/{id}
// Auth: Optional
func (h *TeamHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	team, err := h.svc.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "", team)
}

// HandleUpdate edits a team. Admins only.
//
// HTTP: PUT /api/teams/{id}
// Auth: Required
func (h *TeamHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var in service.UpdateTeamInput
	if err := decodeJSON(w, r, h.maxBody, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	team, err := h.svc.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "Team updated successfully", team)
}

// HandleJoin adds the caller to a public team.
//
// HTTP: POST /api/teams/{id}/join
// Auth: Required
func (h *TeamHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	team, err := h.svc.Join(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeData(w, h.logger, http.StatusOK, "Successfully joined team", team)
}
