package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository"
)

var _ repository.HelpRequestRepository = (*HelpRequestStore)(nil)

type HelpRequestStore struct{ db *DB }

func (s *HelpRequestStore) Create(ctx context.Context, req *model.HelpRequest) error {
	now := nowMillis()
	req.ID = primitive.NewObjectID()
	req.CreatedAt = now
	req.UpdatedAt = now
	req.Volunteers = nonNil(req.Volunteers)

	if err := saveHelpRequest(ctx, s.db.conn, req); err != nil {
		return fmt.Errorf("sqlite: inserting help request: %w", err)
	}
	return nil
}

func (s *HelpRequestStore) GetByID(ctx context.Context, id primitive.ObjectID) (*model.HelpRequest, error) {
	h, err := loadDoc[model.HelpRequest](ctx, s.db.conn, helpRequestsTable, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Help request", id.Hex())
		}
		return nil, fmt.Errorf("sqlite: getting help request %s: %w", id.Hex(), err)
	}
	h.Volunteers = nonNil(h.Volunteers)
	return h, nil
}

// List returns matching help requests, newest first.
func (s *HelpRequestStore) List(ctx context.Context, f model.HelpRequestFilter) ([]model.HelpRequest, error) {
	reqs, err := queryDocs[model.HelpRequest](ctx, s.db.conn, `
		SELECT doc FROM help_requests
		WHERE (? = '' OR urgency = ?) AND (? = '' OR status = ?)
		ORDER BY created_at DESC, id DESC`,
		f.Urgency, f.Urgency, f.Status, f.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing help requests: %w", err)
	}
	for i := range reqs {
		reqs[i].Volunteers = nonNil(reqs[i].Volunteers)
	}
	return reqs, nil
}

// Update refuses (ErrGuardRejected) to lower VolunteersNeeded below the
// number of volunteers already signed up.
func (s *HelpRequestStore) Update(ctx context.Context, id primitive.ObjectID, upd model.HelpRequestUpdate) (*model.HelpRequest, error) {
	h, err := mutate(ctx, s.db, helpRequestsTable, id, func(h *model.HelpRequest) error {
		if upd.VolunteersNeeded != nil && *upd.VolunteersNeeded < len(h.Volunteers) {
			return repository.ErrGuardRejected
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
		h.Volunteers = nonNil(h.Volunteers)
		h.UpdatedAt = nowMillis()
		return nil
	}, saveHelpRequest)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, apperror.NotFound("Help request", id.Hex())
		case errors.Is(err, repository.ErrGuardRejected):
			return nil, err
		}
		return nil, fmt.Errorf("sqlite: updating help request %s: %w", id.Hex(), err)
	}
	return h, nil
}

// AddVolunteer adds userID while the request is open, below its cap and the
// user is not already a volunteer.
func (s *HelpRequestStore) AddVolunteer(ctx context.Context, reqID, userID primitive.ObjectID) (*model.HelpRequest, error) {
	h, err := mutate(ctx, s.db, helpRequestsTable, reqID, func(h *model.HelpRequest) error {
		if h.Status != model.HelpOpen || h.HasVolunteer(userID) || h.IsFull() {
			return repository.ErrGuardRejected
		}
		h.Volunteers = append(nonNil(h.Volunteers), userID)
		h.UpdatedAt = nowMillis()
		return nil
	}, saveHelpRequest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, repository.ErrGuardRejected) {
			return nil, repository.ErrGuardRejected
		}
		return nil, fmt.Errorf("sqlite: adding volunteer to help request %s: %w", reqID.Hex(), err)
	}
	return h, nil
}

func saveHelpRequest(ctx context.Context, q querier, h *model.HelpRequest) error {
	raw, err := bson.Marshal(h)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO help_requests (id, urgency, status, created_at, doc) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET urgency = excluded.urgency, status = excluded.status,
			doc = excluded.doc`,
		h.ID.Hex(), h.UrgencyLevel, h.Status, h.CreatedAt.UnixMilli(), raw,
	)
	return err
}
