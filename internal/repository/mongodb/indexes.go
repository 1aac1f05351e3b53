package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

/*
EnsureIndexes is called at startup and by the `indexes` command. Creating an
index that already exists with the same name and keys is a no-op, so this is
safe to run repeatedly. Errors are aggregated so every broken collection is
reported at once.
*/
func (db *DB) EnsureIndexes(ctx context.Context) error {
	var problems []string

	for _, set := range indexSpecs() {
		if err := ensure(ctx, db.db.Collection(set.collection), set.models); err != nil {
			problems = append(problems, set.collection+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

func indexSpecs() []collectionIndexes {
	return []collectionIndexes{
		{
			collection: usersCollection,
			models: []mongo.IndexModel{
				// email uniqueness is what makes duplicate registration fail
				// atomically instead of racing a find-then-insert
				{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("uniq_email").SetUnique(true)},
				{Keys: bson.D{{Key: "githubId", Value: 1}}, Options: options.Index().SetName("uniq_github_id").SetUnique(true).SetSparse(true)},
			},
		},
		{
			collection: eventsCollection,
			models: []mongo.IndexModel{
				{Keys: bson.D{{Key: "date", Value: 1}}, Options: options.Index().SetName("idx_date")},
				{Keys: bson.D{{Key: "category", Value: 1}, {Key: "date", Value: 1}}, Options: options.Index().SetName("idx_category_date")},
				{Keys: bson.D{{Key: "participants", Value: 1}}, Options: options.Index().SetName("idx_participants")},
			},
		},
		{
			collection: teamsCollection,
			models: []mongo.IndexModel{
				{Keys: bson.D{{Key: "category", Value: 1}}, Options: options.Index().SetName("idx_category")},
				{Keys: bson.D{{Key: "members.user", Value: 1}}, Options: options.Index().SetName("idx_members_user")},
			},
		},
		{
			collection: helpRequestsCollection,
			models: []mongo.IndexModel{
				{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_status_created")},
				{Keys: bson.D{{Key: "urgencyLevel", Value: 1}}, Options: options.Index().SetName("idx_urgency")},
			},
		},
	}
}

func ensure(ctx context.Context, c *mongo.Collection, models []mongo.IndexModel) error {
	if _, err := c.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}
	return nil
}
