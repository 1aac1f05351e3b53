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

var _ repository.EventRepository = (*EventStore)(nil)

type EventStore struct {
	c       *mongo.Collection
	timeout time.Duration
}

func (s *EventStore) Create(ctx context.Context, event *model.Event) error {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	event.ID = primitive.NewObjectID()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Participants = nonNil(event.Participants)

	if _, err := s.c.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("mongodb: inserting event: %w", err)
	}
	return nil
}

func (s *EventStore) GetByID(ctx context.Context, id primitive.ObjectID) (*model.Event, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	var e model.Event
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFound("Event", id.Hex())
		}
		return nil, fmt.Errorf("mongodb: getting event %s: %w", id.Hex(), err)
	}
	return &e, nil
}

// List returns matching events, soonest first.
func (s *EventStore) List(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	filter := bson.M{}
	if len(f.Categories) > 0 {
		filter["category"] = bson.M{"$in": f.Categories}
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing events: %w", err)
	}
	defer cur.Close(ctx)

	out := []model.Event{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongodb: decoding events: %w", err)
	}
	return out, nil
}

func (s *EventStore) Update(ctx context.Context, id primitive.ObjectID, upd model.EventUpdate) (*model.Event, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	set := bson.M{"updatedAt": time.Now().UTC()}
	if upd.Title != nil {
		set["title"] = *upd.Title
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.Location != nil {
		set["location"] = *upd.Location
	}

	e, err := findOneAndUpdate[model.Event](ctx, s.c, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		if isNoDocuments(err) {
			return nil, apperror.NotFound("Event", id.Hex())
		}
		return nil, fmt.Errorf("mongodb: updating event %s: %w", id.Hex(), err)
	}
	return e, nil
}

// AddParticipant is the guarded half of a join. The filter only matches while
// userID is absent and the event has room, so the membership and capacity
// checks happen in the same atomic step as the write.
func (s *EventStore) AddParticipant(ctx context.Context, eventID, userID primitive.ObjectID) (*model.Event, error) {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	filter := bson.M{
		"_id":          eventID,
		"participants": bson.M{"$ne": userID},
		"$or": bson.A{
			bson.M{"maxParticipants": bson.M{"$lte": 0}},
			bson.M{"$expr": bson.M{"$lt": bson.A{bson.M{"$size": "$participants"}, "$maxParticipants"}}},
		},
	}
	update := bson.M{
		"$addToSet": bson.M{"participants": userID},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	}

	e, err := findOneAndUpdate[model.Event](ctx, s.c, filter, update)
	if err != nil {
		if isNoDocuments(err) {
			return nil, repository.ErrGuardRejected
		}
		return nil, fmt.Errorf("mongodb: adding participant to event %s: %w", eventID.Hex(), err)
	}
	return e, nil
}

// RemoveParticipant undoes AddParticipant. Removing an absent user is a no-op.
func (s *EventStore) RemoveParticipant(ctx context.Context, eventID, userID primitive.ObjectID) error {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	update := bson.M{
		"$pull": bson.M{"participants": userID},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	if _, err := s.c.UpdateOne(ctx, bson.M{"_id": eventID}, update); err != nil {
		return fmt.Errorf("mongodb: removing participant from event %s: %w", eventID.Hex(), err)
	}
	return nil
}

func (s *EventStore) Delete(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongodb: deleting event %s: %w", id.Hex(), err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("Event", id.Hex())
	}
	return nil
}

func (s *EventStore) Summaries(ctx context.Context, ids []primitive.ObjectID) ([]model.EventSummary, error) {
	if len(ids) == 0 {
		return []model.EventSummary{}, nil
	}
	ctx, cancel := opContext(ctx, s.timeout)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"title": 1, "date": 1, "location": 1, "status": 1}).
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: loading event summaries: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]model.EventSummary, 0, len(ids))
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongodb: decoding event summaries: %w", err)
	}
	return out, nil
}
