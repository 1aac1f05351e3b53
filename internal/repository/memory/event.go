package memory

import (
	"context"
	"slices"
	"time"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ repository.EventRepository = (*EventStore)(nil)

type EventStore struct{ s *Store }

func (r *EventStore) Create(_ context.Context, event *model.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	event.ID = primitive.NewObjectID()
	event.CreatedAt = now
	event.UpdatedAt = now
	stored := cloneEvent(event)
	r.s.events[event.ID] = stored
	*event = *cloneEvent(stored)
	return nil
}

func (r *EventStore) GetByID(_ context.Context, id primitive.ObjectID) (*model.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.events[id]
	if !ok {
		return nil, apperror.NotFound("Event", id.Hex())
	}
	return cloneEvent(e), nil
}

func (r *EventStore) List(_ context.Context, f model.EventFilter) ([]model.Event, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []model.Event{}
	for _, e := range r.s.events {
		if len(f.Categories) > 0 && !slices.Contains(f.Categories, e.Category) {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, *cloneEvent(e))
	}
	sortByTime(out, func(e model.Event) time.Time { return e.Date }, func(e model.Event) primitive.ObjectID { return e.ID }, false)
	return out, nil
}

func (r *EventStore) Update(_ context.Context, id primitive.ObjectID, upd model.EventUpdate) (*model.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.events[id]
	if !ok {
		return nil, apperror.NotFound("Event", id.Hex())
	}
	if upd.Title != nil {
		e.Title = *upd.Title
	}
	if upd.Description != nil {
		e.Description = *upd.Description
	}
	if upd.Status != nil {
		e.Status = *upd.Status
	}
	if upd.Location != nil {
		e.Location = *upd.Location
	}
	e.UpdatedAt = time.Now().UTC()
	return cloneEvent(e), nil
}

func (r *EventStore) AddParticipant(_ context.Context, eventID, userID primitive.ObjectID) (*model.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.events[eventID]
	if !ok || e.HasParticipant(userID) || e.IsFull() {
		return nil, repository.ErrGuardRejected
	}
	e.Participants = append(e.Participants, userID)
	e.UpdatedAt = time.Now().UTC()
	return cloneEvent(e), nil
}

func (r *EventStore) RemoveParticipant(_ context.Context, eventID, userID primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.events[eventID]
	if !ok {
		return nil
	}
	e.Participants = slices.DeleteFunc(e.Participants, func(id primitive.ObjectID) bool { return id == userID })
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *EventStore) Delete(_ context.Context, id primitive.ObjectID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.events[id]; !ok {
		return apperror.NotFound("Event", id.Hex())
	}
	delete(r.s.events, id)
	return nil
}

func (r *EventStore) Summaries(_ context.Context, ids []primitive.ObjectID) ([]model.EventSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]model.EventSummary, 0, len(ids))
	for _, id := range model.UniqueIDs(ids) {
		if e, ok := r.s.events[id]; ok {
			out = append(out, e.Summary())
		}
	}
	sortByTime(out, func(e model.EventSummary) time.Time { return e.Date }, func(e model.EventSummary) primitive.ObjectID { return e.ID }, false)
	return out, nil
}
