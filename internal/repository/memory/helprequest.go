package memory

import (
	"context"
	"time"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ repository.HelpRequestRepository = (*HelpRequestStore)(nil)

type HelpRequestStore struct{ s *Store }

func (r *HelpRequestStore) Create(_ context.Context, req *model.HelpRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	req.ID = primitive.NewObjectID()
	req.CreatedAt = now
	req.UpdatedAt = now
	stored := cloneHelpRequest(req)
	r.s.helpRequests[req.ID] = stored
	*req = *cloneHelpRequest(stored)
	return nil
}

func (r *HelpRequestStore) GetByID(_ context.Context, id primitive.ObjectID) (*model.HelpRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	h, ok := r.s.helpRequests[id]
	if !ok {
		return nil, apperror.NotFound("Help request", id.Hex())
	}
	return cloneHelpRequest(h), nil
}

func (r *HelpRequestStore) List(_ context.Context, f model.HelpRequestFilter) ([]model.HelpRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []model.HelpRequest{}
	for _, h := range r.s.helpRequests {
		if f.Urgency != "" && h.UrgencyLevel != f.Urgency {
			continue
		}
		if f.Status != "" && h.Status != f.Status {
			continue
		}
		out = append(out, *cloneHelpRequest(h))
	}
	sortByTime(out, func(h model.HelpRequest) time.Time { return h.CreatedAt }, func(h model.HelpRequest) primitive.ObjectID { return h.ID }, true)
	return out, nil
}

func (r *HelpRequestStore) Update(_ context.Context, id primitive.ObjectID, upd model.HelpRequestUpdate) (*model.HelpRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	h, ok := r.s.helpRequests[id]
	if !ok {
		return nil, apperror.NotFound("Help request", id.Hex())
	}
	if upd.VolunteersNeeded != nil && *upd.VolunteersNeeded < len(h.Volunteers) {
		return nil, repository.ErrGuardRejected
	}
	if upd.Title != nil {
		h.Title = *upd.Title
	}
	if upd.Description != nil {
		h.Description = *upd.Description
	}
	if upd.Location != nil {
		h.Location = *upd.Location
	}
	if upd.UrgencyLevel != nil {
		h.UrgencyLevel = *upd.UrgencyLevel
	}
	if upd.VolunteersNeeded != nil {
		h.VolunteersNeeded = *upd.VolunteersNeeded
	}
	if upd.Status != nil {
		h.Status = *upd.Status
	}
	h.UpdatedAt = time.Now().UTC()
	return cloneHelpRequest(h), nil
}

func (r *HelpRequestStore) AddVolunteer(_ context.Context, reqID, userID primitive.ObjectID) (*model.HelpRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	h, ok := r.s.helpRequests[reqID]
	if !ok || h.Status != model.HelpOpen || h.HasVolunteer(userID) || h.IsFull() {
		return nil, repository.ErrGuardRejected
	}
	h.Volunteers = append(h.Volunteers, userID)
	h.UpdatedAt = time.Now().UTC()
	return cloneHelpRequest(h), nil
}
