package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository"
)

// compile-time check that *UserStore implements repository.UserRepository
var _ repository.UserRepository = (*UserStore)(nil)

type UserStore struct{ db *DB }

// Create inserts a new user. The UNIQUE constraint on email turns a
// duplicate registration into a Conflict.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	now := nowMillis()
	user.ID = primitive.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now
	prepareUser(user)

	if err := saveUser(ctx, s.db.conn, user); err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("User already exists")
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}
	return nil
}

func (s *UserStore) GetUserByID(ctx context.Context, id primitive.ObjectID) (*model.User, error) {
	u, err := loadDoc[model.User](ctx, s.db.conn, usersTable, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("User", id.Hex())
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id.Hex(), err)
	}
	prepareUser(u)
	return u, nil
}

// GetByEmail expects an already-normalized (trimmed, lowercased) address.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	users, err := queryDocs[model.User](ctx, s.db.conn, `SELECT doc FROM users WHERE email = ?`, email)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	if len(users) == 0 {
		return nil, apperror.NotFoundMessage("User not found")
	}
	prepareUser(&users[0])
	return &users[0], nil
}

// UpsertGitHub refreshes the name of the account linked to user.GitHubID,
// or inserts a new account when there is none. Lookup and write share one
// transaction, so two first sign-ins of the same GitHub user create one row.
func (s *UserStore) UpsertGitHub(ctx context.Context, user *model.User) error {
	now := nowMillis()

	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := queryDocs[model.User](ctx, tx, `SELECT doc FROM users WHERE github_id = ?`, user.GitHubID)
		if err != nil {
			return fmt.Errorf("sqlite: looking up user by github id %d: %w", user.GitHubID, err)
		}

		if len(existing) > 0 {
			stored := existing[0]
			prepareUser(&stored)
			stored.Name = user.Name
			stored.UpdatedAt = now
			if err := saveUser(ctx, tx, &stored); err != nil {
				return fmt.Errorf("sqlite: updating user %s: %w", stored.ID.Hex(), err)
			}
			*user = stored
			return nil
		}

		stored := model.User{
			ID:           primitive.NewObjectID(),
			Name:         user.Name,
			Email:        user.Email,
			PasswordHash: user.PasswordHash,
			GitHubID:     user.GitHubID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		prepareUser(&stored)
		if err := saveUser(ctx, tx, &stored); err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("User already exists")
			}
			return fmt.Errorf("sqlite: inserting github user %d: %w", user.GitHubID, err)
		}
		*user = stored
		return nil
	})
	return err
}

func (s *UserStore) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd model.ProfileUpdate) (*model.User, error) {
	u, err := mutate(ctx, s.db, usersTable, id, func(u *model.User) error {
		prepareUser(u)
		if upd.Name != nil {
			u.Name = *upd.Name
		}
		if upd.Bio != nil {
			u.Bio = *upd.Bio
		}
		if upd.Skills != nil {
			u.Skills = nonNil(*upd.Skills)
		}
		if upd.Causes != nil {
			u.Causes = nonNil(*upd.Causes)
		}
		u.UpdatedAt = nowMillis()
		return nil
	}, saveUser)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("User", id.Hex())
		}
		return nil, fmt.Errorf("sqlite: updating profile %s: %w", id.Hex(), err)
	}
	return u, nil
}

func (s *UserStore) LinkEvent(ctx context.Context, userID, eventID primitive.ObjectID, created bool) error {
	_, err := mutate(ctx, s.db, usersTable, userID, func(u *model.User) error {
		prepareUser(u)
		if !model.ContainsID(u.JoinedEvents, eventID) {
			u.JoinedEvents = append(u.JoinedEvents, eventID)
		}
		if created && !model.ContainsID(u.CreatedEvents, eventID) {
			u.CreatedEvents = append(u.CreatedEvents, eventID)
		}
		u.UpdatedAt = nowMillis()
		return nil
	}, saveUser)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("User", userID.Hex())
		}
		return fmt.Errorf("sqlite: linking event %s to user %s: %w", eventID.Hex(), userID.Hex(), err)
	}
	return nil
}

func (s *UserStore) Summaries(ctx context.Context, ids []primitive.ObjectID) ([]model.UserSummary, error) {
	ids = model.UniqueIDs(ids)
	if len(ids) == 0 {
		return []model.UserSummary{}, nil
	}
	in, args := idList(ids)
	users, err := queryDocs[model.User](ctx, s.db.conn, `SELECT doc FROM users WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading user summaries: %w", err)
	}
	out := make([]model.UserSummary, 0, len(users))
	for i := range users {
		out = append(out, users[i].Summary())
	}
	return out, nil
}

// saveUser writes the whole document and its lookup columns.
// ON CONFLICT(id) updates in place; a clash on email or github_id still
// fails with a UNIQUE violation instead of replacing the other row.
func saveUser(ctx context.Context, q querier, u *model.User) error {
	raw, err := bson.Marshal(u)
	if err != nil {
		return err
	}
	var githubID any
	if u.GitHubID != 0 {
		githubID = u.GitHubID
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO users (id, email, github_id, doc) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email, github_id = excluded.github_id, doc = excluded.doc`,
		u.ID.Hex(), u.Email, githubID, raw,
	)
	return err
}

func prepareUser(u *model.User) {
	u.Skills = nonNil(u.Skills)
	u.Causes = nonNil(u.Causes)
	u.JoinedEvents = nonNil(u.JoinedEvents)
	u.CreatedEvents = nonNil(u.CreatedEvents)
}

// nowMillis is truncated to milliseconds so a value survives the BSON round trip
// unchanged and CreatedAt == UpdatedAt stays comparable after a reload.
func nowMillis() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
