package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/metrics"
	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository"
	"github.com/sakif/volunteer-hub/internal/sanitize"
)

const resourceTeam = "Team"

// TeamService holds the team rules.
//
// PRIVATE TEAMS:
// A private team is invisible to non-members. Get answers "not found" rather
// than "forbidden" so the response does not confirm the team exists, and
// List leaves it out. Nobody can join a private team through the API.
type TeamService struct {
	teams    repository.TeamRepository
	populate populator
	metrics  *metrics.Metrics
	validate *validator.Validate
	logger   *zap.Logger
}

// NewTeamService creates a TeamService.
func NewTeamService(
	teams repository.TeamRepository,
	users repository.UserRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TeamService {
	return &TeamService{
		teams:    teams,
		populate: populator{users: users},
		metrics:  m,
		validate: newValidator(),
		logger:   logger,
	}
}

// CreateTeamInput is the body of POST /api/teams.
type CreateTeamInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"required,max=2000"`
	Category    string `json:"category" validate:"required,max=100"`
	IsPrivate   bool   `json:"isPrivate"`
}

// UpdateTeamInput is the body of PUT /api/teams/{id}.
type UpdateTeamInput struct {
	Name        *string `json:"name" validate:"omitnil,min=1,max=100"`
	Description *string `json:"description" validate:"omitnil,min=1,max=2000"`
	Category    *string `json:"category" validate:"omitnil,min=1,max=100"`
	IsPrivate   *bool   `json:"isPrivate"`
}

// Create inserts a team whose only member is the caller, as admin.
func (s *TeamService) Create(ctx context.Context, callerID string, in CreateTeamInput) (*model.TeamView, error) {
	caller, err := parseCallerID(callerID)
	if err != nil {
		return nil, err
	}

	in.Name = sanitize.Text(in.Name)
	in.Description = sanitize.Text(in.Description)
	in.Category = sanitize.Text(in.Category)
	if err := validateInput(s.validate, in, "Name, description and category are required"); err != nil {
		return nil, err
	}

	team := &model.Team{
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		IsPrivate:   in.IsPrivate,
		Creator:     caller,
		Members: []model.TeamMember{
			{User: caller, Role: model.RoleAdmin, JoinedAt: time.Now().UTC()},
		},
	}
	if err := s.teams.Create(ctx, team); err != nil {
		return nil, fmt.Errorf("creating team: %w", err)
	}

	s.logger.Info("team created", zap.String("teamID", team.ID.Hex()), zap.String("creatorID", callerID))
	return s.populate.team(ctx, team)
}

// List returns the teams the caller may see, newest first. callerID may be
// empty for anonymous requests.
func (s *TeamService) List(ctx context.Context, callerID, category string) ([]model.TeamView, error) {
	teams, err := s.teams.List(ctx, model.TeamFilter{
		Category: strings.TrimSpace(category),
		Viewer:   optionalCallerID(callerID),
	})
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	return s.populate.teams(ctx, teams)
}

// Get returns one team, hiding private teams from non-members.
func (s *TeamService) Get(ctx context.Context, callerID, teamID string) (*model.TeamView, error) {
	team, err := s.load(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.IsPrivate {
		if _, member := team.MemberRole(optionalCallerID(callerID)); !member {
			return nil, apperror.NotFound(resourceTeam, teamID)
		}
	}
	return s.populate.team(ctx, team)
}

// Update applies the present fields. Only admins may edit a team.
func (s *TeamService) Update(ctx context.Context, callerID, teamID string, in UpdateTeamInput) (*model.TeamView, error) {
	caller, err := parseCallerID(callerID)
	if err != nil {
		return nil, err
	}
	team, err := s.load(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !team.IsAdmin(caller) {
		if _, member := team.MemberRole(caller); team.IsPrivate && !member {
			return nil, apperror.NotFound(resourceTeam, teamID)
		}
		return nil, apperror.Forbidden("Not authorized to update this team")
	}

	in.Name = sanitize.TextPtr(in.Name)
	in.Description = sanitize.TextPtr(in.Description)
	in.Category = sanitize.TextPtr(in.Category)
	if err := validateInput(s.validate, in, ""); err != nil {
		return nil, err
	}

	updated, err := s.teams.Update(ctx, team.ID, model.TeamUpdate{
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		IsPrivate:   in.IsPrivate,
	})
	if err != nil {
		if isAppError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("updating team %s: %w", teamID, err)
	}

	s.logger.Info("team updated", zap.String("teamID", teamID), zap.String("userID", callerID))
	return s.populate.team(ctx, updated)
}

// Join adds the caller as a member. The store's guard refuses duplicates and
// private teams atomically; the checks here only pick the right message.
func (s *TeamService) Join(ctx context.Context, callerID, teamID string) (*model.TeamView, error) {
	caller, err := parseCallerID(callerID)
	if err != nil {
		return nil, err
	}
	team, err := s.load(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.checkJoinable(team, caller); err != nil {
		return nil, err
	}

	joined, err := s.teams.AddMember(ctx, team.ID, model.TeamMember{
		User:     caller,
		Role:     model.RoleMember,
		JoinedAt: time.Now().UTC(),
	})
	if err != nil {
		if !errors.Is(err, repository.ErrGuardRejected) {
			s.metrics.RecordJoin(metrics.ResourceTeam, metrics.ResultError)
			return nil, fmt.Errorf("adding member to team %s: %w", teamID, err)
		}
		current, rerr := s.teams.GetByID(ctx, team.ID)
		if rerr != nil {
			s.metrics.RecordJoin(metrics.ResourceTeam, metrics.ResultRejected)
			if isAppError(rerr) {
				return nil, rerr
			}
			return nil, fmt.Errorf("re-reading team %s: %w", teamID, rerr)
		}
		if cerr := s.checkJoinable(current, caller); cerr != nil {
			return nil, cerr
		}
		s.metrics.RecordJoin(metrics.ResourceTeam, metrics.ResultRejected)
		return nil, fmt.Errorf("join on team %s rejected without a visible cause", teamID)
	}

	s.metrics.RecordJoin(metrics.ResourceTeam, metrics.ResultJoined)
	s.logger.Info("user joined team", zap.String("teamID", teamID), zap.String("userID", callerID))
	return s.populate.team(ctx, joined)
}

func (s *TeamService) checkJoinable(team *model.Team, caller primitive.ObjectID) error {
	_, member := team.MemberRole(caller)
	switch {
	case member:
		s.metrics.RecordJoin(metrics.ResourceTeam, metrics.ResultAlreadyJoined)
		return apperror.AlreadyJoined("Already a member of this team")
	case team.IsPrivate:
		s.metrics.RecordJoin(metrics.ResourceTeam, metrics.ResultRejected)
		return apperror.Forbidden("This team is private")
	}
	return nil
}

func (s *TeamService) load(ctx context.Context, teamID string) (*model.Team, error) {
	id, err := parseID(resourceTeam, teamID)
	if err != nil {
		return nil, err
	}
	team, err := s.teams.GetByID(ctx, id)
	if err != nil {
		if isAppError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("fetching team %s: %w", teamID, err)
	}
	return team, nil
}
