package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Urgency levels.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// UrgencyLevels lists every accepted urgency level.
var UrgencyLevels = []string{UrgencyLow, UrgencyMedium, UrgencyHigh}

// Help request statuses.
const (
	HelpOpen       = "open"
	HelpInProgress = "in_progress"
	HelpCompleted  = "completed"
	HelpCancelled  = "cancelled"
)

// HelpRequestStatuses lists every accepted help request status.
var HelpRequestStatuses = []string{HelpOpen, HelpInProgress, HelpCompleted, HelpCancelled}

// HelpRequest asks for VolunteersNeeded people. The count is a hard cap:
// Volunteers never grows past it.
type HelpRequest struct {
	ID               primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Title            string               `bson:"title" json:"title"`
	Description      string               `bson:"description" json:"description"`
	Location         string               `bson:"location" json:"location"`
	UrgencyLevel     string               `bson:"urgencyLevel" json:"urgencyLevel"`
	VolunteersNeeded int                  `bson:"volunteersNeeded" json:"volunteersNeeded"`
	Volunteers       []primitive.ObjectID `bson:"volunteers" json:"volunteers"`
	Status           string               `bson:"status" json:"status"`
	Requester        primitive.ObjectID   `bson:"requester" json:"requester"`
	CreatedAt        time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// HasVolunteer scans the volunteer list for userID.
func (h *HelpRequest) HasVolunteer(userID primitive.ObjectID) bool {
	return ContainsID(h.Volunteers, userID)
}

// IsFull reports whether enough volunteers have signed up.
func (h *HelpRequest) IsFull() bool {
	return len(h.Volunteers) >= h.VolunteersNeeded
}

// HelpRequestView is a help request with requester and volunteers expanded.
type HelpRequestView struct {
	ID               primitive.ObjectID `json:"id"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	Location         string             `json:"location"`
	UrgencyLevel     string             `json:"urgencyLevel"`
	VolunteersNeeded int                `json:"volunteersNeeded"`
	Volunteers       []UserSummary      `json:"volunteers"`
	Status           string             `json:"status"`
	Requester        UserSummary        `json:"requester"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// HelpRequestUpdate is the requester-editable subset of a help request.
type HelpRequestUpdate struct {
	Title            *string
	Description      *string
	Location         *string
	UrgencyLevel     *string
	VolunteersNeeded *int
	Status           *string
}

// HelpRequestFilter narrows List. Empty fields match everything.
type HelpRequestFilter struct {
	Urgency string
	Status  string
}
