package model

import (
	"slices"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ContainsID reports whether id appears in ids, comparing by value.
func ContainsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	return slices.Contains(ids, id)
}

// UniqueIDs returns ids with duplicates removed, keeping first occurrences.
// Used to build $in queries for reference expansion.
func UniqueIDs(ids ...[]primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{})
	var out []primitive.ObjectID
	for _, list := range ids {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
