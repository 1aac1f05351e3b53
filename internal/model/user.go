// Package model defines the data structures used throughout the application.
//
// DOCUMENTS VS VIEWS:
// The structs with `bson` tags are the stored documents. Relationships are
// stored as references (ObjectIDs), never embedded copies. Anything a client
// sees with related data filled in is a *View (or Summary) struct assembled
// by the service layer, the Go equivalent of a "populate" step.
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a registered volunteer account.
//
// WHY json:"-" ON PasswordHash?
// The hash must never leave the server. Tagging it out of JSON means even a
// handler that accidentally encodes a *User cannot leak it.
//
// WHY GitHubID int64 WITH omitempty?
// Only users who signed in through GitHub have one. With omitempty the field
// is absent from the document for everyone else, which is what lets the
// unique index on it be sparse.
type User struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name          string               `bson:"name" json:"name"`
	Email         string               `bson:"email" json:"email"`
	PasswordHash  string               `bson:"password" json:"-"`
	Bio           string               `bson:"bio" json:"bio"`
	Skills        []string             `bson:"skills" json:"skills"`
	Causes        []string             `bson:"causes" json:"causes"`
	JoinedEvents  []primitive.ObjectID `bson:"joinedEvents" json:"joinedEvents"`
	CreatedEvents []primitive.ObjectID `bson:"createdEvents" json:"createdEvents"`
	GitHubID      int64                `bson:"githubId,omitempty" json:"-"`
	CreatedAt     time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// UserSummary is the expanded form of a user reference: {id, name, email}.
type UserSummary struct {
	ID    primitive.ObjectID `bson:"_id" json:"id"`
	Name  string             `bson:"name" json:"name"`
	Email string             `bson:"email" json:"email"`
}

// PublicUser is what auth responses return about the signed-in user.
type PublicUser struct {
	ID     primitive.ObjectID `json:"id"`
	Name   string             `json:"name"`
	Email  string             `json:"email"`
	Bio    string             `json:"bio"`
	Skills []string           `json:"skills"`
	Causes []string           `json:"causes"`
}

// Profile is the authenticated user's own view, with event references expanded.
type Profile struct {
	ID            primitive.ObjectID `json:"id"`
	Name          string             `json:"name"`
	Email         string             `json:"email"`
	Bio           string             `json:"bio"`
	Skills        []string           `json:"skills"`
	Causes        []string           `json:"causes"`
	JoinedEvents  []EventSummary     `json:"joinedEvents"`
	CreatedEvents []EventSummary     `json:"createdEvents"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// ProfileUpdate is a partial profile change. A nil field means "not sent";
// a non-nil pointer to an empty value is a real update that clears the field.
type ProfileUpdate struct {
	Name   *string
	Bio    *string
	Skills *[]string
	Causes *[]string
}

// IsEmpty reports whether the update carries no fields at all.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Name == nil && u.Bio == nil && u.Skills == nil && u.Causes == nil
}

// Public projects a user for auth responses, dropping credentials and
// relationship lists.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Bio:    u.Bio,
		Skills: nonNilStrings(u.Skills),
		Causes: nonNilStrings(u.Causes),
	}
}

// Summary projects a user into its reference-expansion form.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
