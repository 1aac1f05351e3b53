package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository"
)

var _ repository.EventRepository = (*EventStore)(nil)

type EventStore struct{ db *DB }

func (s *EventStore) Create(ctx context.Context, event *model.Event) error {
	now := nowMillis()
	event.ID = primitive.NewObjectID()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Participants = nonNil(event.Participants)

	if err := saveEvent(ctx, s.db.conn, event); err != nil {
		return fmt.Errorf("sqlite: inserting event: %w", err)
	}
	return nil
}

func (s *EventStore) GetByID(ctx context.Context, id primitive.ObjectID) (*model.Event, error) {
	e, err := loadDoc[model.Event](ctx, s.db.conn, eventsTable, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Event", id.Hex())
		}
		return nil, fmt.Errorf("sqlite: getting event %s: %w", id.Hex(), err)
	}
	e.Participants = nonNil(e.Participants)
	return e, nil
}

// List returns matching events soonest first.
func (s *EventStore) List(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Categories) > 0 {
		where = append(where, "category IN ("+strings.TrimSuffix(strings.Repeat("?,", len(f.Categories)), ",")+")")
		for _, c := range f.Categories {
			args = append(args, c)
		}
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := `SELECT doc FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date ASC, id ASC`

	events, err := queryDocs[model.Event](ctx, s.db.conn, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing events: %w", err)
	}
	for i := range events {
		events[i].Participants = nonNil(events[i].Participants)
	}
	return events, nil
}

func (s *EventStore) Update(ctx context.Context, id primitive.ObjectID, upd model.EventUpdate) (*model.Event, error) {
	e, err := mutate(ctx, s.db, eventsTable, id, func(e *model.Event) error {
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
		e.Participants = nonNil(e.Participants)
		e.UpdatedAt = nowMillis()
		return nil
	}, saveEvent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Event", id.Hex())
		}
		return nil, fmt.Errorf("sqlite: updating event %s: %w", id.Hex(), err)
	}
	return e, nil
}

// AddParticipant adds userID unless already present or the event is full.
// The check and the write share one transaction.
func (s *EventStore) AddParticipant(ctx context.Context, eventID, userID primitive.ObjectID) (*model.Event, error) {
	e, err := mutate(ctx, s.db, eventsTable, eventID, func(e *model.Event) error {
		if e.HasParticipant(userID) || e.IsFull() {
			return repository.ErrGuardRejected
		}
		e.Participants = append(nonNil(e.Participants), userID)
		e.UpdatedAt = nowMillis()
		return nil
	}, saveEvent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, repository.ErrGuardRejected) {
			return nil, repository.ErrGuardRejected
		}
		return nil, fmt.Errorf("sqlite: adding participant to event %s: %w", eventID.Hex(), err)
	}
	return e, nil
}

// RemoveParticipant is the compensation for a failed join. A missing event
// is not an error: there is nothing left to undo.
func (s *EventStore) RemoveParticipant(ctx context.Context, eventID, userID primitive.ObjectID) error {
	_, err := mutate(ctx, s.db, eventsTable, eventID, func(e *model.Event) error {
		e.Participants = slices.DeleteFunc(nonNil(e.Participants), func(id primitive.ObjectID) bool { return id == userID })
		e.UpdatedAt = nowMillis()
		return nil
	}, saveEvent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: removing participant from event %s: %w", eventID.Hex(), err)
	}
	return nil
}

func (s *EventStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.db.conn.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id.Hex())
	if err != nil {
		return fmt.Errorf("sqlite: deleting event %s: %w", id.Hex(), err)
	}
	// RowsAffected tells us whether the WHERE clause matched anything.
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking delete result: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("Event", id.Hex())
	}
	return nil
}

// Summaries returns the referenced events sorted by date ascending.
func (s *EventStore) Summaries(ctx context.Context, ids []primitive.ObjectID) ([]model.EventSummary, error) {
	ids = model.UniqueIDs(ids)
	if len(ids) == 0 {
		return []model.EventSummary{}, nil
	}
	in, args := idList(ids)
	events, err := queryDocs[model.Event](ctx, s.db.conn,
		`SELECT doc FROM events WHERE id IN (`+in+`) ORDER BY date ASC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading event summaries: %w", err)
	}
	out := make([]model.EventSummary, 0, len(events))
	for i := range events {
		out = append(out, events[i].Summary())
	}
	return out, nil
}

func saveEvent(ctx context.Context, q querier, e *model.Event) error {
	raw, err := bson.Marshal(e)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO events (id, date, category, status, doc) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date, category = excluded.category,
			status = excluded.status, doc = excluded.doc`,
		e.ID.Hex(), e.Date.UnixMilli(), e.Category, e.Status, raw,
	)
	return err
}
