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

const resourceEvent = "Event"

// dateLayouts are tried in order when parsing an event date. The two
// minute-precision forms are what an HTML datetime-local input submits.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseEventDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperror.ValidationFailed("date", "date must be a valid date")
}

// EventService holds the event rules: creation, editing by the creator and
// joining with an optional capacity.
type EventService struct {
	events   repository.EventRepository
	users    repository.UserRepository
	populate populator
	metrics  *metrics.Metrics
	validate *validator.Validate
	logger   *zap.Logger
}

// NewEventService creates an EventService.
func NewEventService(
	events repository.EventRepository,
	users repository.UserRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
) *EventService {
	return &EventService{
		events:   events,
		users:    users,
		populate: populator{users: users},
		metrics:  m,
		validate: newValidator(),
		logger:   logger,
	}
}

// CreateEventInput is the body of POST /api/events.
type CreateEventInput struct {
	Title           string `json:"title" validate:"required,max=200"`
	Description     string `json:"description" validate:"required,max=5000"`
	Date            string `json:"date" validate:"required"`
	Location        string `json:"location" validate:"required,max=200"`
	Category        string `json:"category" validate:"required,max=100"`
	MaxParticipants int    `json:"maxParticipants" validate:"gte=0,lte=100000"`
}

// UpdateEventInput is the body of PUT /api/events/{id}. Date and category are
// deliberately absent: they are fixed once the event exists.
type UpdateEventInput struct {
	Title       *string `json:"title" validate:"omitnil,min=1,max=200"`
	Description *string `json:"description" validate:"omitnil,min=1,max=5000"`
	Status      *string `json:"status" validate:"omitnil,oneof=upcoming ongoing completed cancelled"`
	Location    *string `json:"location" validate:"omitnil,min=1,max=200"`
}

// ListEventsInput carries the optional query filters of GET /api/events.
type ListEventsInput struct {
	Categories []string
	Status     string
}

// Create inserts an event with the caller as creator and first participant,
// then links it into the caller's joinedEvents and createdEvents.
//
// COMPENSATION:
// The event and the user live in different documents, so the two writes
// cannot be one atomic operation. If linking fails the event is deleted
// again so no event exists that its creator's profile does not know about.
// A failed delete is logged and counted; the client just gets a 500.
func (s *EventService) Create(ctx context.Context, callerID string, in CreateEventInput) (*model.EventView, error) {
	caller, err := parseCallerID(callerID)
	if err != nil {
		return nil, err
	}

	in.Title = sanitize.Text(in.Title)
	in.Description = sanitize.Text(in.Description)
	in.Location = sanitize.Text(in.Location)
	in.Category = sanitize.Text(in.Category)
	if err := validateInput(s.validate, in, "All fields are required"); err != nil {
		return nil, err
	}
	date, err := parseEventDate(in.Date)
	if err != nil {
		return nil, err
	}

	event := &model.Event{
		Title:           in.Title,
		Description:     in.Description,
		Date:            date,
		Location:        in.Location,
		Category:        in.Category,
		Status:          model.EventUpcoming,
		Creator:         caller,
		Participants:    []primitive.ObjectID{caller},
		MaxParticipants: in.MaxParticipants,
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("creating event: %w", err)
	}

	if err := s.users.LinkEvent(ctx, caller, event.ID, true); err != nil {
		s.compensate("event_create", event.ID, caller, err, func(ctx context.Context) error {
			return s.events.Delete(ctx, event.ID)
		})
		return nil, fmt.Errorf("linking event %s to creator %s: %w", event.ID.Hex(), callerID, err)
	}

	s.logger.Info("event created",
		zap.String("eventID", event.ID.Hex()),
		zap.String("creatorID", callerID),
	)
	return s.populate.event(ctx, event)
}

// List returns every event matching the filters, soonest first.
func (s *EventService) List(ctx context.Context, in ListEventsInput) ([]model.EventView, error) {
	filter := model.EventFilter{Status: strings.TrimSpace(in.Status)}
	for _, c := range in.Categories {
		for _, part := range strings.Split(c, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Categories = append(filter.Categories, part)
			}
		}
	}

	events, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return s.populate.events(ctx, events)
}

// Get returns one expanded event.
func (s *EventService) Get(ctx context.Context, eventID string) (*model.EventView, error) {
	event, err := s.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.populate.event(ctx, event)
}

// Update applies the present fields. Only the creator may edit an event.
func (s *EventService) Update(ctx context.Context, callerID, eventID string, in UpdateEventInput) (*model.EventView, error) {
	caller, err := parseCallerID(callerID)
	if err != nil {
		return nil, err
	}
	event, err := s.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.Creator != caller {
		return nil, apperror.Forbidden("Not authorized to update this event")
	}

	in.Title = sanitize.TextPtr(in.Title)
	in.Description = sanitize.TextPtr(in.Description)
	in.Location = sanitize.TextPtr(in.Location)
	if in.Status != nil {
		status := strings.TrimSpace(*in.Status)
		in.Status = &status
	}
	if err := validateInput(s.validate, in, ""); err != nil {
		return nil, err
	}

	updated, err := s.events.Update(ctx, event.ID, model.EventUpdate{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Location:    in.Location,
	})
	if err != nil {
		if isAppError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("updating event %s: %w", eventID, err)
	}

	s.logger.Info("event updated", zap.String("eventID", eventID), zap.String("userID", callerID))
	return s.populate.event(ctx, updated)
}

// Join adds the caller to an event's participants and the event to the
// caller's joinedEvents.
//
// THE TWO STEPS:
//  1. A conditional $addToSet on the event. The filter re-checks that the
//     caller is not already in and that there is room, so two racing joins
//     for the last seat cannot both succeed.
//  2. $addToSet of the event id into the user's joinedEvents.
//
// If step 2 fails, step 1 is undone with $pull. The scan before step 1 only
// exists to give a friendly "already joined" answer cheaply; the guard in
// step 1 is what actually enforces it.
func (s *EventService) Join(ctx context.Context, callerID, eventID string) (*model.EventView, error) {
	if strings.TrimSpace(callerID) == "" || strings.TrimSpace(eventID) == "" {
		return nil, apperror.ValidationFailed("id", "Invalid user or event ID")
	}
	caller, err := parseCallerID(callerID)
	if err != nil {
		return nil, err
	}
	event, err := s.load(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if event.HasParticipant(caller) {
		s.metrics.RecordJoin(metrics.ResourceEvent, metrics.ResultAlreadyJoined)
		return nil, apperror.AlreadyJoined("Already joined this event")
	}

	joined, err := s.events.AddParticipant(ctx, event.ID, caller)
	if err != nil {
		if !errors.Is(err, repository.ErrGuardRejected) {
			s.metrics.RecordJoin(metrics.ResourceEvent, metrics.ResultError)
			return nil, fmt.Errorf("adding participant to event %s: %w", eventID, err)
		}
		return nil, s.classifyRejectedJoin(ctx, event.ID, caller)
	}

	if err := s.users.LinkEvent(ctx, caller, event.ID, false); err != nil {
		s.metrics.RecordJoin(metrics.ResourceEvent, metrics.ResultError)
		s.compensate("event_join", event.ID, caller, err, func(ctx context.Context) error {
			return s.events.RemoveParticipant(ctx, event.ID, caller)
		})
		return nil, fmt.Errorf("linking event %s to user %s: %w", eventID, callerID, err)
	}

	s.metrics.RecordJoin(metrics.ResourceEvent, metrics.ResultJoined)
	s.logger.Info("user joined event", zap.String("eventID", eventID), zap.String("userID", callerID))
	return s.populate.event(ctx, joined)
}

// classifyRejectedJoin re-reads the event after the guarded update matched
// nothing and works out which condition failed.
func (s *EventService) classifyRejectedJoin(ctx context.Context, eventID, caller primitive.ObjectID) error {
	current, err := s.events.GetByID(ctx, eventID)
	switch {
	case err != nil && errors.Is(err, apperror.ErrNotFound):
		s.metrics.RecordJoin(metrics.ResourceEvent, metrics.ResultRejected)
		return err
	case err != nil:
		s.metrics.RecordJoin(metrics.ResourceEvent, metrics.ResultError)
		return fmt.Errorf("re-reading event %s: %w", eventID.Hex(), err)
	case current.HasParticipant(caller):
		s.metrics.RecordJoin(metrics.ResourceEvent, metrics.ResultAlreadyJoined)
		return apperror.AlreadyJoined("Already joined this event")
	case current.IsFull():
		s.metrics.RecordJoin(metrics.ResourceEvent, metrics.ResultFull)
		return apperror.Full("This event is full")
	default:
		// The document changed between the guard and the re-read.
		s.metrics.RecordJoin(metrics.ResourceEvent, metrics.ResultRejected)
		return fmt.Errorf("join on event %s rejected without a visible cause", eventID.Hex())
	}
}

// compensate runs undo on a context detached from the request, so a client
// that hung up does not also cancel the cleanup.
func (s *EventService) compensate(op string, eventID, userID primitive.ObjectID, cause error, undo func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := undo(ctx); err != nil {
		s.metrics.RecordCompensation(op, false)
		s.logger.Error("compensation failed, event and user documents disagree",
			zap.String("operation", op),
			zap.String("eventID", eventID.Hex()),
			zap.String("userID", userID.Hex()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	s.metrics.RecordCompensation(op, true)
	s.logger.Warn("compensated failed cross-document write",
		zap.String("operation", op),
		zap.String("eventID", eventID.Hex()),
		zap.String("userID", userID.Hex()),
		zap.NamedError("cause", cause),
	)
}

func (s *EventService) load(ctx context.Context, eventID string) (*model.Event, error) {
	id, err := parseID(resourceEvent, eventID)
	if err != nil {
		return nil, err
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		if isAppError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("fetching event %s: %w", eventID, err)
	}
	return event, nil
}
