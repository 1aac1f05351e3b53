// Package repository declares the storage contracts the service layer
// depends on.
//
// Services only ever see these interfaces. Three implementations exist:
//   - repository/mongodb: the production document store
//   - repository/sqlite: an embedded single-file store
//   - repository/memory: an in-process store for development and tests
//
// CONTRACT SHARED BY ALL THREE:
//   - Lookups of a missing document return an *apperror.AppError wrapping
//     apperror.ErrNotFound.
//   - Create fills in ID and timestamps on the passed struct, and stores
//     reference lists as empty arrays (never null) so set operators work.
//   - Membership mutations (AddParticipant, AddMember, AddVolunteer) are
//     single-document conditional updates. When nothing matched (the guard
//     rejected the change, or the document is gone) they return
//     ErrGuardRejected and the caller re-reads the document to find out why.
package repository

import (
	"context"
	"errors"

	"github.com/sakif/volunteer-hub/internal/model"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrGuardRejected means a conditional membership update matched no document.
var ErrGuardRejected = errors.New("repository: conditional update did not apply")

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id primitive.ObjectID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// UpsertGitHub inserts or refreshes the user keyed by user.GitHubID and
	// writes the stored document back into user.
	UpsertGitHub(ctx context.Context, user *model.User) error
	UpdateProfile(ctx context.Context, id primitive.ObjectID, upd model.ProfileUpdate) (*model.User, error)
	// LinkEvent adds eventID to joinedEvents (and createdEvents when created
	// is true) with set semantics.
	LinkEvent(ctx context.Context, userID, eventID primitive.ObjectID, created bool) error
	Summaries(ctx context.Context, ids []primitive.ObjectID) ([]model.UserSummary, error)
}

type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*model.Event, error)
	List(ctx context.Context, filter model.EventFilter) ([]model.Event, error)
	Update(ctx context.Context, id primitive.ObjectID, upd model.EventUpdate) (*model.Event, error)
	// AddParticipant adds userID unless already present or the event is full.
	AddParticipant(ctx context.Context, eventID, userID primitive.ObjectID) (*model.Event, error)
	RemoveParticipant(ctx context.Context, eventID, userID primitive.ObjectID) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	// Summaries returns the referenced events sorted by date ascending.
	Summaries(ctx context.Context, ids []primitive.ObjectID) ([]model.EventSummary, error)
}

type TeamRepository interface {
	Create(ctx context.Context, team *model.Team) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*model.Team, error)
	List(ctx context.Context, filter model.TeamFilter) ([]model.Team, error)
	Update(ctx context.Context, id primitive.ObjectID, upd model.TeamUpdate) (*model.Team, error)
	// AddMember appends member unless the user is already in the team or the
	// team is private.
	AddMember(ctx context.Context, teamID primitive.ObjectID, member model.TeamMember) (*model.Team, error)
}

type HelpRequestRepository interface {
	Create(ctx context.Context, req *model.HelpRequest) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*model.HelpRequest, error)
	List(ctx context.Context, filter model.HelpRequestFilter) ([]model.HelpRequest, error)
	// Update refuses (ErrGuardRejected) to lower VolunteersNeeded below the
	// number of volunteers already signed up.
	Update(ctx context.Context, id primitive.ObjectID, upd model.HelpRequestUpdate) (*model.HelpRequest, error)
	// AddVolunteer adds userID while the request is open, below its cap and
	// the user is not already a volunteer.
	AddVolunteer(ctx context.Context, reqID, userID primitive.ObjectID) (*model.HelpRequest, error)
}

// Stores bundles one implementation of every repository. Backends hand one
// of these to the server so wiring does not care which backend is in use.
type Stores struct {
	Users        UserRepository
	Events       EventRepository
	Teams        TeamRepository
	HelpRequests HelpRequestRepository
}
