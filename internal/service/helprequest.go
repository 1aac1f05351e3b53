package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/metrics"
	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository"
	"github.com/sakif/volunteer-hub/internal/sanitize"
)

const resourceHelpRequest = "Help request"

// HelpRequestService holds the help request rules.
//
// VolunteersNeeded is a hard cap. Signing up and lowering the cap both go
// through guarded single-document updates, so the volunteer list can never
// end up longer than the number of people asked for.
type HelpRequestService struct {
	requests repository.HelpRequestRepository
	populate populator
	metrics  *metrics.Metrics
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHelpRequestService creates a HelpRequestService.
func NewHelpRequestService(
	requests repository.HelpRequestRepository,
	users repository.UserRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *HelpRequestService {
	return &HelpRequestService{
		requests: requests,
		populate: populator{users: users},
		metrics:  m,
		validate: newValidator(),
		logger:   logger,
	}
}

// CreateHelpRequestInput is the body of POST /api/help-requests.
type CreateHelpRequestInput struct {
	Title            string `json:"title" validate:"required,max=200"`
	Description      string `json:"description" validate:"required,max=5000"`
	Location         string `json:"location" validate:"required,max=200"`
	UrgencyLevel     string `json:"urgencyLevel" validate:"required,oneof=low medium high"`
	VolunteersNeeded int    `json:"volunteersNeeded" validate:"required,gte=1,lte=1000"`
}

// UpdateHelpRequestInput is the body of PUT /api/help-requests/{id}.
type UpdateHelpRequestInput struct {
	Title            *string `json:"title" validate:"omitnil,min=1,max=200"`
	Description      *string `json:"description" validate:"omitnil,min=1,max=5000"`
	Location         *string `json:"location" validate:"omitnil,min=1,max=200"`
	UrgencyLevel     *string `json:"urgencyLevel" validate:"omitnil,oneof=low medium high"`
	VolunteersNeeded *int    `json:"volunteersNeeded" validate:"omitnil,gte=1,lte=1000"`
	Status           *string `json:"status" validate:"omitnil,oneof=open in_progress completed cancelled"`
}

// ListHelpRequestsInput carries the optional query filters.
type ListHelpRequestsInput struct {
	Urgency string
	Status  string
}

// Create inserts an open help request owned by the caller.
func (s *HelpRequestService) Create(ctx context.Context, callerID string, in CreateHelpRequestInput) (*model.HelpRequestView, error) {
	caller, err := parseCallerID(callerID)
	if err != nil {
		return nil, err
	}

	in.Title = sanitize.Text(in.Title)
	in.Description = sanitize.Text(in.Description)
	in.Location = sanitize.Text(in.Location)
	in.UrgencyLevel = strings.TrimSpace(in.UrgencyLevel)
	if err := validateInput(s.validate, in, "All fields are required"); err != nil {
		return nil, err
	}

	req := &model.HelpRequest{
		Title:            in.Title,
		Description:      in.Description,
		Location:         in.Location,
		UrgencyLevel:     in.UrgencyLevel,
		VolunteersNeeded: in.VolunteersNeeded,
		Volunteers:       []primitive.ObjectID{},
		Status:           model.HelpOpen,
		Requester:        caller,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("creating help request: %w", err)
	}

	s.logger.Info("help request created",
		zap.String("helpRequestID", req.ID.Hex()),
		zap.String("requesterID", callerID),
		zap.String("urgency", req.UrgencyLevel),
	)
	return s.populate.helpRequest(ctx, req)
}

// List returns help requests matching the filters, newest first.
func (s *HelpRequestService) List(ctx context.Context, in ListHelpRequestsInput) ([]model.HelpRequestView, error) {
	reqs, err := s.requests.List(ctx, model.HelpRequestFilter{
		Urgency: strings.TrimSpace(in.Urgency),
		Status:  strings.TrimSpace(in.Status),
	})
	if err != nil {
		return nil, fmt.Errorf("listing help requests: %w", err)
	}
	return s.populate.helpRequests(ctx, reqs)
}

// Get returns one expanded help request.
func (s *HelpRequestService) Get(ctx context.Context, reqID string) (*model.HelpRequestView, error) {
	req, err := s.load(ctx, reqID)
	if err != nil {
		return nil, err
	}
	return s.populate.helpRequest(ctx, req)
}

// Update applies the present fields. Only the requester may edit, and the
// cap cannot drop below the volunteers already signed up.
func (s *HelpRequestService) Update(ctx context.Context, callerID, reqID string, in UpdateHelpRequestInput) (*model.HelpRequestView, error) {
	caller, err := parseCallerID(callerID)
	if err != nil {
		return nil, err
	}
	req, err := s.load(ctx, reqID)
	if err != nil {
		return nil, err
	}
	if req.Requester != caller {
		return nil, apperror.Forbidden("Not authorized to update this help request")
	}

	in.Title = sanitize.TextPtr(in.Title)
	in.Description = sanitize.TextPtr(in.Description)
	in.Location = sanitize.TextPtr(in.Location)
	in.UrgencyLevel = trimPtr(in.UrgencyLevel)
	in.Status = trimPtr(in.Status)
	if err := validateInput(s.validate, in, ""); err != nil {
		return nil, err
	}
	if in.VolunteersNeeded != nil && *in.VolunteersNeeded < len(req.Volunteers) {
		return nil, lowCapError(len(req.Volunteers))
	}

	updated, err := s.requests.Update(ctx, req.ID, model.HelpRequestUpdate{
		Title:            in.Title,
		Description:      in.Description,
		Location:         in.Location,
		UrgencyLevel:     in.UrgencyLevel,
		VolunteersNeeded: in.VolunteersNeeded,
		Status:           in.Status,
	})
	if err != nil {
		if errors.Is(err, repository.ErrGuardRejected) {
			// Someone volunteered between the read and the write.
			current, rerr := s.load(ctx, reqID)
			if rerr != nil {
				return nil, rerr
			}
			return nil, lowCapError(len(current.Volunteers))
		}
		if isAppError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("updating help request %s: %w", reqID, err)
	}

	s.logger.Info("help request updated", zap.String("helpRequestID", reqID), zap.String("userID", callerID))
	return s.populate.helpRequest(ctx, updated)
}

func lowCapError(current int) error {
	return apperror.ValidationFailed("volunteersNeeded",
		fmt.Sprintf("volunteersNeeded cannot be lower than the %d volunteers already signed up", current))
}

// Volunteer signs the caller up for a help request.
func (s *HelpRequestService) Volunteer(ctx context.Context, callerID, reqID string) (*model.HelpRequestView, error) {
	caller, err := parseCallerID(callerID)
	if err != nil {
		return nil, err
	}
	req, err := s.load(ctx, reqID)
	if err != nil {
		return nil, err
	}
	if err := s.checkVolunteerable(req, caller); err != nil {
		return nil, err
	}

	joined, err := s.requests.AddVolunteer(ctx, req.ID, caller)
	if err != nil {
		if !errors.Is(err, repository.ErrGuardRejected) {
			s.metrics.RecordJoin(metrics.ResourceHelpRequest, metrics.ResultError)
			return nil, fmt.Errorf("adding volunteer to help request %s: %w", reqID, err)
		}
		current, rerr := s.requests.GetByID(ctx, req.ID)
		if rerr != nil {
			s.metrics.RecordJoin(metrics.ResourceHelpRequest, metrics.ResultRejected)
			if isAppError(rerr) {
				return nil, rerr
			}
			return nil, fmt.Errorf("re-reading help request %s: %w", reqID, rerr)
		}
		if cerr := s.checkVolunteerable(current, caller); cerr != nil {
			return nil, cerr
		}
		s.metrics.RecordJoin(metrics.ResourceHelpRequest, metrics.ResultRejected)
		return nil, fmt.Errorf("volunteering on help request %s rejected without a visible cause", reqID)
	}

	s.metrics.RecordJoin(metrics.ResourceHelpRequest, metrics.ResultJoined)
	s.logger.Info("user volunteered",
		zap.String("helpRequestID", reqID),
		zap.String("userID", callerID),
		zap.Int("volunteers", len(joined.Volunteers)),
		zap.Int("needed", joined.VolunteersNeeded),
	)
	return s.populate.helpRequest(ctx, joined)
}

// checkVolunteerable applies the sign-up rules in the order clients see
// them: own request, closed, duplicate, full.
func (s *HelpRequestService) checkVolunteerable(req *model.HelpRequest, caller primitive.ObjectID) error {
	switch {
	case req.Requester == caller:
		s.metrics.RecordJoin(metrics.ResourceHelpRequest, metrics.ResultRejected)
		return apperror.ValidationFailed("requester", "You cannot volunteer for your own help request")
	case req.Status != model.HelpOpen:
		s.metrics.RecordJoin(metrics.ResourceHelpRequest, metrics.ResultRejected)
		return apperror.ValidationFailed("status", "This help request is not accepting volunteers")
	case req.HasVolunteer(caller):
		s.metrics.RecordJoin(metrics.ResourceHelpRequest, metrics.ResultAlreadyJoined)
		return apperror.AlreadyJoined("Already volunteered for this request")
	case req.IsFull():
		s.metrics.RecordJoin(metrics.ResourceHelpRequest, metrics.ResultFull)
		return apperror.Full("This help request already has enough volunteers")
	}
	return nil
}

func (s *HelpRequestService) load(ctx context.Context, reqID string) (*model.HelpRequest, error) {
	id, err := parseID(resourceHelpRequest, reqID)
	if err != nil {
		return nil, err
	}
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if isAppError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("fetching help request %s: %w", reqID, err)
	}
	return req, nil
}
