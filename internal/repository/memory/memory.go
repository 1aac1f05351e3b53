// Package memory is an in-process implementation of the repository
// interfaces, selected with STORE_DRIVER=memory.
//
// It exists for local development without a database and for service and
// handler tests. It follows the same contract as the mongodb package: IDs and
// timestamps are assigned on create, lists are never nil, and membership
// changes check their guard and write under one lock, so they are atomic in
// the same way a filtered MongoDB update is.
//
// WHY COPY ON THE WAY IN AND OUT?
// Callers get pointers. If the store handed out its own structs, a service
// appending to e.Participants would silently edit "the database". Cloning at
// the boundary keeps the behaviour identical to a real store round trip.
package memory

import (
	"slices"
	"sync"

	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store holds every collection behind a single RWMutex.
type Store struct {
	mu           sync.RWMutex
	users        map[primitive.ObjectID]*model.User
	events       map[primitive.ObjectID]*model.Event
	teams        map[primitive.ObjectID]*model.Team
	helpRequests map[primitive.ObjectID]*model.HelpRequest
}

func New() *Store {
	return &Store{
		users:        make(map[primitive.ObjectID]*model.User),
		events:       make(map[primitive.ObjectID]*model.Event),
		teams:        make(map[primitive.ObjectID]*model.Team),
		helpRequests: make(map[primitive.ObjectID]*model.HelpRequest),
	}
}

func (s *Store) Users() *UserStore               { return &UserStore{s} }
func (s *Store) Events() *EventStore             { return &EventStore{s} }
func (s *Store) Teams() *TeamStore               { return &TeamStore{s} }
func (s *Store) HelpRequests() *HelpRequestStore { return &HelpRequestStore{s} }

// Stores returns every store behind the repository interfaces.
func (s *Store) Stores() repository.Stores {
	return repository.Stores{
		Users:        s.Users(),
		Events:       s.Events(),
		Teams:        s.Teams(),
		HelpRequests: s.HelpRequests(),
	}
}

func cloneIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	if ids == nil {
		return []primitive.ObjectID{}
	}
	return slices.Clone(ids)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Skills = cloneStrings(u.Skills)
	c.Causes = cloneStrings(u.Causes)
	c.JoinedEvents = cloneIDs(u.JoinedEvents)
	c.CreatedEvents = cloneIDs(u.CreatedEvents)
	return &c
}

func cloneEvent(e *model.Event) *model.Event {
	c := *e
	c.Participants = cloneIDs(e.Participants)
	return &c
}

func cloneTeam(t *model.Team) *model.Team {
	c := *t
	if t.Members == nil {
		c.Members = []model.TeamMember{}
	} else {
		c.Members = slices.Clone(t.Members)
	}
	return &c
}

func cloneHelpRequest(h *model.HelpRequest) *model.HelpRequest {
	c := *h
	c.Volunteers = cloneIDs(h.Volunteers)
	return &c
}

// addID appends id unless present, mirroring $addToSet.
func addID(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	if model.ContainsID(ids, id) {
		return ids
	}
	return append(ids, id)
}
