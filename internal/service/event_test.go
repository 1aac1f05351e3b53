package service

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/metrics"
	"github.com/sakif/volunteer-hub/internal/model"
	"github.com/sakif/volunteer-hub/internal/repository/memory"
)

func TestCreateEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.register(t, "Ann", "ann@x.com")

	ev, err := f.events.Create(ctx, ann, CreateEventInput{
		Title:       "Beach <script>alert(1)</script>Cleanup",
		Description: "Bring gloves",
		Date:        "2030-06-01T09:00",
		Location:    "Santa Monica",
		Category:    "environment",
	})
	require.NoError(t, err)

	assert.Equal(t, "Beach Cleanup", ev.Title, "markup is stripped from free text")
	assert.Equal(t, model.EventUpcoming, ev.Status)
	assert.Equal(t, "Ann", ev.Creator.Name)
	require.Len(t, ev.Participants, 1)
	assert.Equal(t, ann, ev.Participants[0].ID.Hex(), "the creator is the first participant")

	user, err := f.auth.GetUserByID(ctx, ann)
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{ev.ID}, user.JoinedEvents)
	assert.Equal(t, []primitive.ObjectID{ev.ID}, user.CreatedEvents)
}

func TestCreateEvent_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.register(t, "Ann", "ann@x.com")

	_, err := f.events.Create(ctx, ann, CreateEventInput{Title: "T", Description: "D", Date: "2030-01-01", Location: "   "})
	requireKind(t, err, apperror.ErrValidation, "All fields are required")

	_, err = f.events.Create(ctx, ann, CreateEventInput{Title: "T", Description: "D", Date: "soon", Location: "L", Category: "C"})
	requireKind(t, err, apperror.ErrValidation, "date must be a valid date")

	_, err = f.events.Create(ctx, ann, CreateEventInput{Title: "T", Description: "D", Date: "2030-01-01", Location: "L", Category: "C", MaxParticipants: -1})
	requireKind(t, err, apperror.ErrValidation, "maxParticipants must be at least 0")

	_, err = f.events.Create(ctx, "", CreateEventInput{})
	requireKind(t, err, apperror.ErrUnauthorized, "")
}

func TestCreateEvent_CompensatesWhenLinkFails(t *testing.T) {
	stores := memory.New().Stores()
	stores.Users = failingLinkUsers{stores.Users}
	f := newFixtureWith(t, stores)
	ctx := context.Background()
	ann := f.register(t, "Ann", "ann@x.com")

	_, err := f.events.Create(ctx, ann, CreateEventInput{Title: "T", Description: "D", Date: "2030-01-01", Location: "L", Category: "C"})
	require.Error(t, err)
	assert.False(t, isAppError(err), "a half-applied write is a server error")

	all, err := f.events.List(ctx, ListEventsInput{})
	require.NoError(t, err)
	assert.Empty(t, all, "the orphaned event is deleted")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.JoinCompensations.WithLabelValues("event_create", "ok")))
}

func TestListEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.register(t, "Ann", "ann@x.com")

	for _, in := range []CreateEventInput{
		{Title: "C", Description: "d", Date: "2030-03-01", Location: "L", Category: "health"},
		{Title: "A", Description: "d", Date: "2030-01-01", Location: "L", Category: "environment"},
		{Title: "B", Description: "d", Date: "2030-02-01", Location: "L", Category: "education"},
	} {
		_, err := f.events.Create(ctx, ann, in)
		require.NoError(t, err)
	}

	all, err := f.events.List(ctx, ListEventsInput{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{all[0].Title, all[1].Title, all[2].Title})

	some, err := f.events.List(ctx, ListEventsInput{Categories: []string{"health, education"}})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "B", some[0].Title)

	none, err := f.events.List(ctx, ListEventsInput{Status: model.EventCompleted})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.register(t, "Ann", "ann@x.com")
	id := f.createEvent(t, ann, 0)

	ev, err := f.events.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Ann", ev.Creator.Name)

	_, err = f.events.Get(ctx, primitive.NewObjectID().Hex())
	requireKind(t, err, apperror.ErrNotFound, "")

	_, err = f.events.Get(ctx, "garbage")
	requireKind(t, err, apperror.ErrNotFound, "Event not found with id garbage")
}

func TestUpdateEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.register(t, "Ann", "ann@x.com")
	bob := f.register(t, "Bob", "bob@x.com")
	id := f.createEvent(t, ann, 0)

	title := "Renamed"
	_, err := f.events.Update(ctx, bob, id, UpdateEventInput{Title: &title})
	requireKind(t, err, apperror.ErrForbidden, "Not authorized to update this event")

	status := model.EventCompleted
	ev, err := f.events.Update(ctx, ann, id, UpdateEventInput{Title: &title, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", ev.Title)
	assert.Equal(t, model.EventCompleted, ev.Status)
	assert.Equal(t, "Santa Monica", ev.Location, "absent fields are untouched")

	bogus := "postponed"
	_, err = f.events.Update(ctx, ann, id, UpdateEventInput{Status: &bogus})
	requireKind(t, err, apperror.ErrValidation, "status must be one of: upcoming, ongoing, completed, cancelled")

	_, err = f.events.Update(ctx, ann, primitive.NewObjectID().Hex(), UpdateEventInput{Title: &title})
	requireKind(t, err, apperror.ErrNotFound, "")
}

func TestJoinEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.register(t, "Ann", "ann@x.com")
	bob := f.register(t, "Bob", "bob@x.com")
	id := f.createEvent(t, ann, 0)

	ev, err := f.events.Join(ctx, bob, id)
	require.NoError(t, err)
	require.Len(t, ev.Participants, 2)
	assert.Equal(t, "Bob", ev.Participants[1].Name)

	user, err := f.auth.GetUserByID(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, user.JoinedEvents, 1)
	assert.Empty(t, user.CreatedEvents)

	_, err = f.events.Join(ctx, bob, id)
	requireKind(t, err, apperror.ErrAlreadyJoined, "Already joined this event")

	_, err = f.events.Join(ctx, ann, id)
	requireKind(t, err, apperror.ErrAlreadyJoined, "Already joined this event")

	_, err = f.events.Join(ctx, bob, primitive.NewObjectID().Hex())
	requireKind(t, err, apperror.ErrNotFound, "")

	_, err = f.events.Join(ctx, bob, "")
	requireKind(t, err, apperror.ErrValidation, "Invalid user or event ID")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MembershipJoins.WithLabelValues(metrics.ResourceEvent, metrics.ResultJoined)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.MembershipJoins.WithLabelValues(metrics.ResourceEvent, metrics.ResultAlreadyJoined)))
}

func TestJoinEvent_Full(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.register(t, "Ann", "ann@x.com")
	bob := f.register(t, "Bob", "bob@x.com")
	cat := f.register(t, "Cat", "cat@x.com")
	id := f.createEvent(t, ann, 2)

	_, err := f.events.Join(ctx, bob, id)
	require.NoError(t, err)
	_, err = f.events.Join(ctx, cat, id)
	requireKind(t, err, apperror.ErrCapacity, "This event is full")
}

func TestJoinEvent_ConcurrentNeverExceedsCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.register(t, "Ann", "ann@x.com")
	const capacity = 4
	id := f.createEvent(t, ann, capacity)

	const joiners = 20
	users := make([]string, joiners)
	for i := range users {
		users[i] = f.register(t, "User", primitive.NewObjectID().Hex()+"@x.com")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	joined := 0
	for _, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.events.Join(ctx, u, id)
			if err == nil {
				mu.Lock()
				joined++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperror.ErrCapacity)
		}()
	}
	wg.Wait()

	ev, err := f.events.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, ev.Participants, capacity)
	assert.Equal(t, capacity-1, joined, "the creator holds one seat")
}

func TestJoinEvent_ConcurrentSameUserJoinsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.register(t, "Ann", "ann@x.com")
	bob := f.register(t, "Bob", "bob@x.com")
	id := f.createEvent(t, ann, 0)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.events.Join(ctx, bob, id)
		}()
	}
	wg.Wait()

	ev, err := f.events.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, ev.Participants, 2)
}

func TestJoinEvent_CompensatesWhenLinkFails(t *testing.T) {
	base := memory.New().Stores()
	f := newFixtureWith(t, base)
	ctx := context.Background()
	ann := f.register(t, "Ann", "ann@x.com")
	bob := f.register(t, "Bob", "bob@x.com")
	id := f.createEvent(t, ann, 0)

	broken := base
	broken.Users = failingLinkUsers{base.Users}
	g := newFixtureWith(t, broken)

	_, err := g.events.Join(ctx, bob, id)
	require.Error(t, err)
	assert.False(t, isAppError(err))

	ev, err := f.events.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, ev.Participants, 1, "the participant added in step one is pulled again")
	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.JoinCompensations.WithLabelValues("event_join", "ok")))
}

func TestJoinEvent_FailedCompensationIsCounted(t *testing.T) {
	base := memory.New().Stores()
	f := newFixtureWith(t, base)
	ctx := context.Background()
	ann := f.register(t, "Ann", "ann@x.com")
	bob := f.register(t, "Bob", "bob@x.com")
	id := f.createEvent(t, ann, 0)

	broken := base
	broken.Users = failingLinkUsers{base.Users}
	broken.Events = failingUndoEvents{base.Events}
	g := newFixtureWith(t, broken)

	_, err := g.events.Join(ctx, bob, id)
	require.Error(t, err)
	assert.False(t, isAppError(err), "the client sees a plain server error either way")
	assert.Equal(t, 1.0, testutil.ToFloat64(g.metrics.JoinCompensations.WithLabelValues("event_join", "failed")))
}
