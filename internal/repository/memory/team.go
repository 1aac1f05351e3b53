package memory

import (
	"context"
	"time"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ repository.TeamRepository = (*TeamStore)(nil)

type TeamStore struct{ s *Store }

func (r *TeamStore) Create(_ context.Context, team *model.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	team.ID = primitive.NewObjectID()
	team.CreatedAt = now
	team.UpdatedAt = now
	stored := cloneTeam(team)
	r.s.teams[team.ID] = stored
	*team = *cloneTeam(stored)
	return nil
}

func (r *TeamStore) GetByID(_ context.Context, id primitive.ObjectID) (*model.Team, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	t, ok := r.s.teams[id]
	if !ok {
		return nil, apperror.NotFound("Team", id.Hex())
	}
	return cloneTeam(t), nil
}

func (r *TeamStore) List(_ context.Context, f model.TeamFilter) ([]model.Team, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []model.Team{}
	for _, t := range r.s.teams {
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if t.IsPrivate {
			if f.Viewer.IsZero() {
				continue
			}
			if _, member := t.MemberRole(f.Viewer); !member {
				continue
			}
		}
		out = append(out, *cloneTeam(t))
	}
	sortByTime(out, func(t model.Team) time.Time { return t.CreatedAt }, func(t model.Team) primitive.ObjectID { return t.ID }, true)
	return out, nil
}

func (r *TeamStore) Update(_ context.Context, id primitive.ObjectID, upd model.TeamUpdate) (*model.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.teams[id]
	if !ok {
		return nil, apperror.NotFound("Team", id.Hex())
	}
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
	t.UpdatedAt = time.Now().UTC()
	return cloneTeam(t), nil
}

func (r *TeamStore) AddMember(_ context.Context, teamID primitive.ObjectID, member model.TeamMember) (*model.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	t, ok := r.s.teams[teamID]
	if !ok || t.IsPrivate {
		return nil, repository.ErrGuardRejected
	}
	if _, exists := t.MemberRole(member.User); exists {
		return nil, repository.ErrGuardRejected
	}
	t.Members = append(t.Members, member)
	t.UpdatedAt = time.Now().UTC()
	return cloneTeam(t), nil
}
