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

var _ repository.TeamRepository = (*TeamStore)(nil)

type TeamStore struct{ db *DB }

func (s *TeamStore) Create(ctx context.Context, team *model.Team) error {
	now := nowMillis()
	team.ID = primitive.NewObjectID()
	team.CreatedAt = now
	team.UpdatedAt = now
	team.Members = nonNil(team.Members)

	if err := saveTeam(ctx, s.db.conn, team); err != nil {
		return fmt.Errorf("sqlite: inserting team: %w", err)
	}
	return nil
}

func (s *TeamStore) GetByID(ctx context.Context, id primitive.ObjectID) (*model.Team, error) {
	t, err := loadDoc[model.Team](ctx, s.db.conn, teamsTable, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Team", id.Hex())
		}
		return nil, fmt.Errorf("sqlite: getting team %s: %w", id.Hex(), err)
	}
	t.Members = nonNil(t.Members)
	return t, nil
}

// List returns the teams the viewer may see, newest first. SQL narrows by
// category; membership of private teams lives inside the document, so that
// part of the filter runs here.
func (s *TeamStore) List(ctx context.Context, f model.TeamFilter) ([]model.Team, error) {
	query := `SELECT doc FROM teams WHERE (? = '' OR category = ?)`
	args := []any{f.Category, f.Category}
	if f.Viewer.IsZero() {
		query += ` AND is_private = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	teams, err := queryDocs[model.Team](ctx, s.db.conn, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing teams: %w", err)
	}

	out := teams[:0]
	for _, t := range teams {
		if t.IsPrivate {
			if _, member := t.MemberRole(f.Viewer); !member {
				continue
			}
		}
		t.Members = nonNil(t.Members)
		out = append(out, t)
	}
	return out, nil
}

func (s *TeamStore) Update(ctx context.Context, id primitive.ObjectID, upd model.TeamUpdate) (*model.Team, error) {
	t, err := mutate(ctx, s.db, teamsTable, id, func(t *model.Team) error {
		if upd.Name != nil {
			t.Name = *upd.Name
		}
		if upd.Description != nil {
			t.Description = *upd.Description
		}
		if upd.Category != nil {
			t.Category = *upd.Category
		}
		if upd.IsPrivate != nil {
			t.IsPrivate = *upd.IsPrivate
		}
		t.Members = nonNil(t.Members)
		t.UpdatedAt = nowMillis()
		return nil
	}, saveTeam)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("Team", id.Hex())
		}
		return nil, fmt.Errorf("sqlite: updating team %s: %w", id.Hex(), err)
	}
	return t, nil
}

// AddMember appends member unless the user is already in the team or the
// team is private.
func (s *TeamStore) AddMember(ctx context.Context, teamID primitive.ObjectID, member model.TeamMember) (*model.Team, error) {
	t, err := mutate(ctx, s.db, teamsTable, teamID, func(t *model.Team) error {
		if t.IsPrivate {
			return repository.ErrGuardRejected
		}
		if _, exists := t.MemberRole(member.User); exists {
			return repository.ErrGuardRejected
		}
		t.Members = append(nonNil(t.Members), member)
		t.UpdatedAt = nowMillis()
		return nil
	}, saveTeam)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, repository.ErrGuardRejected) {
			return nil, repository.ErrGuardRejected
		}
		return nil, fmt.Errorf("sqlite: adding member to team %s: %w", teamID.Hex(), err)
	}
	return t, nil
}

func saveTeam(ctx context.Context, q querier, t *model.Team) error {
	raw, err := bson.Marshal(t)
	if err != nil {
		return err
	}
	private := 0
	if t.IsPrivate {
		private = 1
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO teams (id, category, is_private, created_at, doc) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET category = excluded.category,
			is_private = excluded.is_private, doc = excluded.doc`,
		t.ID.Hex(), t.Category, private, t.CreatedAt.UnixMilli(), raw,
	)
	return err
}
