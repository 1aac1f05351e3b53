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

var _ repository.TeamRepository = (*TeamStore)(nil)

type TeamStore struct {
	c       *mongo.Collection
	timeout time.Duration
}

func (s *TeamStore) Create(ctx context.Context, team *model.Team) error {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	team.ID = primitive.NewObjectID()
	team.CreatedAt = now
	team.UpdatedAt = now
	team.Members = nonNil(team.Members)

	if _, err := s.c.InsertOne(ctx, team); err != nil {
		return fmt.Errorf("mongodb: inserting team: %w", err)
	}
	return nil
}

func (s *TeamStore) GetByID(ctx context.Context, id primitive.ObjectID) (*model.Team, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	var t model.Team
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFound("Team", id.Hex())
		}
		return nil, fmt.Errorf("mongodb: getting team %s: %w", id.Hex(), err)
	}
	return &t, nil
}

// List returns public teams plus the private ones f.Viewer belongs to,
// newest first.
func (s *TeamStore) List(ctx context.Context, f model.TeamFilter) ([]model.Team, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"isPrivate": false}
	if !f.Viewer.IsZero() {
		filter = bson.M{"$or": bson.A{
			bson.M{"isPrivate": false},
			bson.M{"members.user": f.Viewer},
		}}
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing teams: %w", err)
	}
	defer cur.Close(ctx)

	out := []model.Team{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongodb: decoding teams: %w", err)
	}
	return out, nil
}

func (s *TeamStore) Update(ctx context.Context, id primitive.ObjectID, upd model.TeamUpdate) (*model.Team, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Category != nil {
		set["category"] = *upd.Category
	}
	if upd.IsPrivate != nil {
		set["isPrivate"] = *upd.IsPrivate
	}

	t, err := findOneAndUpdate[model.Team](ctx, s.c, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFound("Team", id.Hex())
		}
		return nil, fmt.Errorf("mongodb: updating team %s: %w", id.Hex(), err)
	}
	return t, nil
}

// AddMember pushes the membership record only while the team is public and
// the user is not yet listed. $push rather than $addToSet: records carry a
// joinedAt, so two records for one user would never compare equal anyway.
func (s *TeamStore) AddMember(ctx context.Context, teamID primitive.ObjectID, member model.TeamMember) (*model.Team, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	filter := bson.M{
		"_id":          teamID,
		"isPrivate":    false,
		"members.user": bson.M{"$ne": member.User},
	}
	update := bson.M{
		"$push": bson.M{"members": member},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}

	t, err := findOneAndUpdate[model.Team](ctx, s.c, filter, update)
	if err != nil {
		if isNoDocuments(err) {
			return nil, repository.ErrGuardRejected
		}
		return nil, fmt.Errorf("mongodb: adding member to team %s: %w", teamID.Hex(), err)
	}
	return t, nil
}
