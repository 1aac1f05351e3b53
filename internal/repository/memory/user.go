package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ repository.UserRepository = (*UserStore)(nil)

type UserStore struct{ s *Store }

func (r *UserStore) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.findByEmailLocked(user.Email) != nil {
		return apperror.Conflict("User already exists")
	}

	now := time.Now().UTC()
	user.ID = primitive.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now
	stored := cloneUser(user)
	r.s.users[user.ID] = stored
	*user = *cloneUser(stored)
	return nil
}

func (r *UserStore) GetUserByID(_ context.Context, id primitive.ObjectID) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, apperror.NotFound("User", id.Hex())
	}
	return cloneUser(u), nil
}

func (r *UserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u := r.findByEmailLocked(email)
	if u == nil {
		return nil, apperror.NotFoundMessage("User not found")
	}
	return cloneUser(u), nil
}

func (r *UserStore) UpsertGitHub(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	for _, u := range r.s.users {
		if u.GitHubID != 0 && u.GitHubID == user.GitHubID {
			u.Name = user.Name
			u.UpdatedAt = now
			*user = *cloneUser(u)
			return nil
		}
	}

	if r.findByEmailLocked(user.Email) != nil {
		return apperror.Conflict("User already exists")
	}

	stored := &model.User{
		ID:           primitive.NewObjectID(),
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		GitHubID:     user.GitHubID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	stored = cloneUser(stored)
	r.s.users[stored.ID] = stored
	*user = *cloneUser(stored)
	return nil
}

func (r *UserStore) UpdateProfile(_ context.Context, id primitive.ObjectID, upd model.ProfileUpdate) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, apperror.NotFound("User", id.Hex())
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Bio != nil {
		u.Bio = *upd.Bio
	}
	if upd.Skills != nil {
		u.Skills = cloneStrings(*upd.Skills)
	}
	if upd.Causes != nil {
		u.Causes = cloneStrings(*upd.Causes)
	}
	u.UpdatedAt = time.Now().UTC()
	return cloneUser(u), nil
}

func (r *UserStore) LinkEvent(_ context.Context, userID, eventID primitive.ObjectID, created bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return apperror.NotFound("User", userID.Hex())
	}
	u.JoinedEvents = addID(u.JoinedEvents, eventID)
	if created {
		u.CreatedEvents = addID(u.CreatedEvents, eventID)
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserStore) Summaries(_ context.Context, ids []primitive.ObjectID) ([]model.UserSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]model.UserSummary, 0, len(ids))
	for _, id := range model.UniqueIDs(ids) {
		if u, ok := r.s.users[id]; ok {
			out = append(out, u.Summary())
		}
	}
	return out, nil
}

func (r *UserStore) findByEmailLocked(email string) *model.User {
	for _, u := range r.s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

// sortByTime orders items by key ascending (or descending), breaking ties on
// the ObjectID so results are stable across calls.
func sortByTime[T any](items []T, key func(T) time.Time, id func(T) primitive.ObjectID, desc bool) {
	slices.SortFunc(items, func(a, b T) int {
		c := key(a).Compare(key(b))
		if c == 0 {
			c = cmp.Compare(id(a).Hex(), id(b).Hex())
		}
		if desc {
			return -c
		}
		return c
	})
}
