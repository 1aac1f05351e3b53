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

var _ repository.HelpRequestRepository = (*HelpRequestStore)(nil)

type HelpRequestStore struct {
	c       *mongo.Collection
	timeout time.Duration
}

func (s *HelpRequestStore) Create(ctx context.Context, req *model.HelpRequest) error {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	req.ID = primitive.NewObjectID()
	req.CreatedAt = now
	req.UpdatedAt = now
	req.Volunteers = nonNil(req.Volunteers)

	if _, err := s.c.InsertOne(ctx, req); err != nil {
		return fmt.Errorf("mongodb: inserting help request: %w", err)
	}
	return nil
}

func (s *HelpRequestStore) GetByID(ctx context.Context, id primitive.ObjectID) (*model.HelpRequest, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	var h model.HelpRequest
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&h); err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFound("Help request", id.Hex())
		}
		return nil, fmt.Errorf("mongodb: getting help request %s: %w", id.Hex(), err)
	}
	return &h, nil
}

// List returns matching help requests, newest first.
func (s *HelpRequestStore) List(ctx context.Context, f model.HelpRequestFilter) ([]model.HelpRequest, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	filter := bson.M{}
	if f.Urgency != "" {
		filter["urgencyLevel"] = f.Urgency
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing help requests: %w", err)
	}
	defer cur.Close(ctx)

	out := []model.HelpRequest{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongodb: decoding help requests: %w", err)
	}
	return out, nil
}

func (s *HelpRequestStore) Update(ctx context.Context, id primitive.ObjectID, upd model.HelpRequestUpdate) (*model.HelpRequest, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"_id": id}
	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Title != nil {
		set["title"] = *upd.Title
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Location != nil {
		set["location"] = *upd.Location
	}
	if upd.UrgencyLevel != nil {
		set["urgencyLevel"] = *upd.UrgencyLevel
	}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.VolunteersNeeded != nil {
		set["volunteersNeeded"] = *upd.VolunteersNeeded
		// a volunteer may have signed up since the caller last read the request
		filter["$expr"] = bson.M{"$lte": bson.A{bson.M{"$size": "$volunteers"}, *upd.VolunteersNeeded}}
	}

	h, err := findOneAndUpdate[model.HelpRequest](ctx, s.c, filter, bson.M{"$set": set})
	if err != nil {
		if isNoDocuments(err) {
			if upd.VolunteersNeeded != nil {
				return nil, repository.ErrGuardRejected
			}
			return nil, apperror.NotFound("Help request", id.Hex())
		}
		return nil, fmt.Errorf("mongodb: updating help request %s: %w", id.Hex(), err)
	}
	return h, nil
}

// AddVolunteer signs userID up while the request is open, has room and does
// not already list them. All three conditions live in the filter.
func (s *HelpRequestStore) AddVolunteer(ctx context.Context, reqID, userID primitive.ObjectID) (*model.HelpRequest, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	filter := bson.M{
		"_id":        reqID,
		"status":     model.HelpOpen,
		"volunteers": bson.M{"$ne": userID},
		"$expr":      bson.M{"$lt": bson.A{bson.M{"$size": "$volunteers"}, "$volunteersNeeded"}},
	}
	update := bson.M{
		"$addToSet": bson.M{"volunteers": userID},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	}

	h, err := findOneAndUpdate[model.HelpRequest](ctx, s.c, filter, update)
	if err != nil {
		if isNoDocuments(err) {
			return nil, repository.ErrGuardRejected
		}
		return nil, fmt.Errorf("mongodb: adding volunteer to help request %s: %w", reqID.Hex(), err)
	}
	return h, nil
}
