package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event statuses.
const (
	EventUpcoming  = "upcoming"
	EventOngoing   = "ongoing"
	EventCompleted = "completed"
	EventCancelled = "cancelled"
)

// EventStatuses lists every accepted event status.
var EventStatuses = []string{EventUpcoming, EventOngoing, EventCompleted, EventCancelled}

// Event is a community event document.
//
// Creator never changes after insert. Participants always contains Creator
// right after creation; nothing re-checks that later.
// MaxParticipants of 0 means the event has no cap.
type Event struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Title           string               `bson:"title" json:"title"`
	Description     string               `bson:"description" json:"description"`
	Date            time.Time            `bson:"date" json:"date"`
	Location        string               `bson:"location" json:"location"`
	Category        string               `bson:"category" json:"category"`
	Status          string               `bson:"status" json:"status"`
	Creator         primitive.ObjectID   `bson:"creator" json:"creator"`
	Participants    []primitive.ObjectID `bson:"participants" json:"participants"`
	MaxParticipants int                  `bson:"maxParticipants" json:"maxParticipants"`
	CreatedAt       time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// HasParticipant scans the participant list for userID.
func (e *Event) HasParticipant(userID primitive.ObjectID) bool {
	return ContainsID(e.Participants, userID)
}

// IsFull reports whether a capped event has no room left.
func (e *Event) IsFull() bool {
	return e.MaxParticipants > 0 && len(e.Participants) >= e.MaxParticipants
}

// Summary is the profile-page projection of an event.
func (e *Event) Summary() EventSummary {
	return EventSummary{
		ID:       e.ID,
		Title:    e.Title,
		Date:     e.Date,
		Location: e.Location,
		Status:   e.Status,
	}
}

// EventSummary is the expanded form of an event reference on a profile.
type EventSummary struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	Title    string             `bson:"title" json:"title"`
	Date     time.Time          `bson:"date" json:"date"`
	Location string             `bson:"location" json:"location"`
	Status   string             `bson:"status" json:"status"`
}

// EventView is an event with creator and participants expanded.
type EventView struct {
	ID              primitive.ObjectID `json:"id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Date            time.Time          `json:"date"`
	Location        string             `json:"location"`
	Category        string             `json:"category"`
	Status          string             `json:"status"`
	Creator         UserSummary        `json:"creator"`
	Participants    []UserSummary      `json:"participants"`
	MaxParticipants int                `json:"maxParticipants"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

// EventUpdate holds the creator-editable subset. Date and category are not
// part of it on purpose: they cannot be changed once the event exists.
type EventUpdate struct {
	Title       *string
	Description *string
	Status      *string
	Location    *string
}

// EventFilter narrows List. Empty fields match everything.
type EventFilter struct {
	Categories []string
	Status     string
}
