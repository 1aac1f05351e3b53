package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Team member roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// TeamMember is one membership record embedded in a team.
type TeamMember struct {
	User     primitive.ObjectID `bson:"user" json:"user"`
	Role     string             `bson:"role" json:"role"`
	JoinedAt time.Time          `bson:"joinedAt" json:"joinedAt"`
}

// Team is a volunteer team document. The creator starts as the only admin.
type Team struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description" json:"description"`
	Category    string             `bson:"category" json:"category"`
	IsPrivate   bool               `bson:"isPrivate" json:"isPrivate"`
	Creator     primitive.ObjectID `bson:"creator" json:"creator"`
	Members     []TeamMember       `bson:"members" json:"members"`
	CreatedAt   time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// MemberRole returns the role userID holds in the team.
func (t *Team) MemberRole(userID primitive.ObjectID) (string, bool) {
	for _, m := range t.Members {
		if m.User == userID {
			return m.Role, true
		}
	}
	return "", false
}

// IsAdmin reports whether userID is a member with the admin role.
func (t *Team) IsAdmin(userID primitive.ObjectID) bool {
	role, ok := t.MemberRole(userID)
	return ok && role == RoleAdmin
}

// MemberIDs lists the referenced users in membership order.
func (t *Team) MemberIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(t.Members))
	for _, m := range t.Members {
		ids = append(ids, m.User)
	}
	return ids
}

// TeamMemberView is a membership record with the user expanded.
type TeamMemberView struct {
	User     UserSummary `json:"user"`
	Role     string      `json:"role"`
	JoinedAt time.Time   `json:"joinedAt"`
}

// TeamView is a team with creator and members expanded.
type TeamView struct {
	ID          primitive.ObjectID `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Category    string             `json:"category"`
	IsPrivate   bool               `json:"isPrivate"`
	Creator     UserSummary        `json:"creator"`
	Members     []TeamMemberView   `json:"members"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// TeamUpdate is the admin-editable subset of a team.
type TeamUpdate struct {
	Name        *string
	Description *string
	Category    *string
	IsPrivate   *bool
}

// TeamFilter narrows List. Viewer is the caller; NilObjectID means anonymous,
// which only ever sees public teams.
type TeamFilter struct {
	Category string
	Viewer   primitive.ObjectID
}
