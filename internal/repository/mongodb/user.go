package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// compile-time check that *UserStore implements repository.UserRepository
var _ repository.UserRepository = (*UserStore)(nil)

type UserStore struct {
	c       *mongo.Collection
	timeout time.Duration
}

// Create inserts a new user. The unique index on email turns a duplicate
// registration into a Conflict, even when two requests race.
func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	user.ID = primitive.NewObjectID()
	user.CreatedAt = now
	user.UpdatedAt = now
	prepareUser(user)

	if _, err := s.c.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("User already exists")
		}
		return fmt.Errorf("mongodb: inserting user %s: %w", user.Email, err)
	}
	return nil
}

func (s *UserStore) GetUserByID(ctx context.Context, id primitive.ObjectID) (*model.User, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	var u model.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFound("User", id.Hex())
		}
		return nil, fmt.Errorf("mongodb: getting user %s: %w", id.Hex(), err)
	}
	return &u, nil
}

// GetByEmail expects an already-normalized (trimmed, lowercased) address.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	var u model.User
	if err := s.c.FindOne(ctx, bson.M{"email": email}).Decode(&u); err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFoundMessage("User not found")
		}
		return nil, fmt.Errorf("mongodb: getting user by email: %w", err)
	}
	return &u, nil
}

// UpsertGitHub finds the user by GitHub id, refreshing the display name, or
// inserts a fresh account. Fields only a new account needs go in
// $setOnInsert so a returning user keeps their profile and event links.
func (s *UserStore) UpsertGitHub(ctx context.Context, user *model.User) error {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"name":      user.Name,
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{
			"email":         user.Email,
			"password":      user.PasswordHash,
			"bio":           "",
			"skills":        []string{},
			"causes":        []string{},
			"joinedEvents":  []primitive.ObjectID{},
			"createdEvents": []primitive.ObjectID{},
			"createdAt":     now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored model.User
	err := s.c.FindOneAndUpdate(ctx, bson.M{"githubId": user.GitHubID}, update, opts).Decode(&stored)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// the email already belongs to a password account
			return apperror.Conflict("User already exists")
		}
		return fmt.Errorf("mongodb: upserting github user %d: %w", user.GitHubID, err)
	}
	*user = stored
	return nil
}

// UpdateProfile applies every non-nil field of upd, including empty values.
func (s *UserStore) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd model.ProfileUpdate) (*model.User, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Bio != nil {
		set["bio"] = *upd.Bio
	}
	if upd.Skills != nil {
		set["skills"] = nonNil(*upd.Skills)
	}
	if upd.Causes != nil {
		set["causes"] = nonNil(*upd.Causes)
	}

	u, err := findOneAndUpdate[model.User](ctx, s.c, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFound("User", id.Hex())
		}
		return nil, fmt.Errorf("mongodb: updating profile %s: %w", id.Hex(), err)
	}
	return u, nil
}

// LinkEvent records eventID on the user with $addToSet, so replaying a link
// never duplicates it.
func (s *UserStore) LinkEvent(ctx context.Context, userID, eventID primitive.ObjectID, created bool) error {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	add := bson.M{"joinedEvents": eventID}
	if created {
		add["createdEvents"] = eventID
	}
	update := bson.M{
		"$addToSet": add,
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	}

	res, err := s.c.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("mongodb: linking event %s to user %s: %w", eventID.Hex(), userID.Hex(), err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("User", userID.Hex())
	}
	return nil
}

// Summaries loads {id, name, email} for each id. Order is unspecified;
// callers index the result by ID. Unknown ids are skipped.
func (s *UserStore) Summaries(ctx context.Context, ids []primitive.ObjectID) ([]model.UserSummary, error) {
	if len(ids) == 0 {
		return []model.UserSummary{}, nil
	}
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	opts := options.Find().SetProjection(bson.M{"name": 1, "email": 1})
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: loading user summaries: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]model.UserSummary, 0, len(ids))
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongodb: decoding user summaries: %w", err)
	}
	return out, nil
}

// prepareUser replaces nil lists with empty ones. The driver encodes a nil
// slice as null, and $addToSet refuses to operate on a null field.
func prepareUser(u *model.User) {
	u.Skills = nonNil(u.Skills)
	u.Causes = nonNil(u.Causes)
	u.JoinedEvents = nonNil(u.JoinedEvents)
	u.CreatedEvents = nonNil(u.CreatedEvents)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// findOneAndUpdate runs the update and decodes the post-update document.
// mongo.ErrNoDocuments is returned unchanged so callers can classify it.
func findOneAndUpdate[T any](ctx context.Context, c *mongo.Collection, filter, update any) (*T, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var out T
	if err := c.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
