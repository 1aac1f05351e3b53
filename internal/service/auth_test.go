package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/volunteer-hub/internal/apperror"
	"github.com/sakif/volunteer-hub/internal/auth"
)

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.auth.Register(ctx, RegisterInput{Name: " Ann ", Email: " Ann@Example.COM ", Password: "pw123456"})
	require.NoError(t, err)

	assert.Equal(t, "Ann", res.User.Name)
	assert.Equal(t, "ann@example.com", res.User.Email, "email is stored trimmed and lower-cased")
	assert.NotEqual(t, "pw123456", res.User.PasswordHash)
	assert.True(t, strings.HasPrefix(res.User.PasswordHash, "$2"))

	sub, err := f.auth.ValidateToken(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID.Hex(), sub)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UsersRegistered.WithLabelValues("password")))
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"missing name", RegisterInput{Email: "a@x.com", Password: "pw123456"}, "name"},
		{"short name", RegisterInput{Name: "A", Email: "a@x.com", Password: "pw123456"}, "name"},
		{"long name", RegisterInput{Name: strings.Repeat("a", 51), Email: "a@x.com", Password: "pw123456"}, "name"},
		{"bad email", RegisterInput{Name: "Ann", Email: "not-an-email", Password: "pw123456"}, "email"},
		{"short password", RegisterInput{Name: "Ann", Email: "a@x.com", Password: "12345"}, "password"},
		{"password over 72 bytes", RegisterInput{Name: "Ann", Email: "a@x.com", Password: strings.Repeat("p", 73)}, "password"},
		{"markup only name", RegisterInput{Name: "<b></b>", Email: "a@x.com", Password: "pw123456"}, "name"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.auth.Register(ctx, tc.in)
			requireKind(t, err, apperror.ErrValidation, "")

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.field, appErr.Field)
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ann", "ann@x.com")

	_, err := f.auth.Register(context.Background(), RegisterInput{Name: "Other", Email: "ANN@x.com", Password: "pw123456"})
	requireKind(t, err, apperror.ErrConflict, "User already exists")
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)
	const n = 8

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.auth.Register(context.Background(), RegisterInput{Name: "Ann", Email: "race@x.com", Password: "pw123456"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperror.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "Ann", "ann@x.com")

	res, err := f.auth.Login(ctx, LoginInput{Email: "ANN@x.com ", Password: "pw123456"})
	require.NoError(t, err)
	assert.Equal(t, id, res.User.ID.Hex())
	assert.NotEmpty(t, res.Token)
}

func TestLogin_FailuresLookIdentical(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Ann", "ann@x.com")

	_, wrongPassword := f.auth.Login(ctx, LoginInput{Email: "ann@x.com", Password: "nope-nope"})
	_, unknownEmail := f.auth.Login(ctx, LoginInput{Email: "ghost@x.com", Password: "pw123456"})

	requireKind(t, wrongPassword, apperror.ErrCredentials, "Invalid credentials")
	requireKind(t, unknownEmail, apperror.ErrCredentials, "Invalid credentials")
}

func TestProfile_ExpandsEventsByDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ann := f.register(t, "Ann", "ann@x.com")
	bob := f.register(t, "Bob", "bob@x.com")

	later, err := f.events.Create(ctx, bob, CreateEventInput{
		Title: "Later", Description: "d", Date: "2031-01-01", Location: "L", Category: "c",
	})
	require.NoError(t, err)
	sooner, err := f.events.Create(ctx, ann, CreateEventInput{
		Title: "Sooner", Description: "d", Date: "2030-01-01", Location: "L", Category: "c",
	})
	require.NoError(t, err)
	_, err = f.events.Join(ctx, ann, later.ID.Hex())
	require.NoError(t, err)

	p, err := f.auth.Profile(ctx, ann)
	require.NoError(t, err)

	require.Len(t, p.JoinedEvents, 2)
	assert.Equal(t, sooner.ID, p.JoinedEvents[0].ID)
	assert.Equal(t, later.ID, p.JoinedEvents[1].ID)
	require.Len(t, p.CreatedEvents, 1)
	assert.Equal(t, "Sooner", p.CreatedEvents[0].Title)
	assert.Equal(t, []string{}, p.Skills)
}

func TestProfile_UserGone(t *testing.T) {
	f := newFixture(t)
	_, err := f.auth.Profile(context.Background(), "64b7f0c2a1b2c3d4e5f60718")
	requireKind(t, err, apperror.ErrNotFound, "User not found")
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "Ann", "ann@x.com")

	skills := []string{"first aid", " <i>driving</i> ", ""}
	bio := "Hello"
	u, err := f.auth.UpdateProfile(ctx, id, UpdateProfileInput{Bio: &bio, Skills: &skills})
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.Name, "absent keys are untouched")
	assert.Equal(t, "Hello", u.Bio)
	assert.Equal(t, []string{"first aid", "driving"}, u.Skills)

	empty := ""
	none := []string{}
	u, err = f.auth.UpdateProfile(ctx, id, UpdateProfileInput{Bio: &empty, Skills: &none})
	require.NoError(t, err)
	assert.Empty(t, u.Bio, "an empty string is applied, not ignored")
	assert.Empty(t, u.Skills)
}

func TestUpdateProfile_NameStillValidated(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "Ann", "ann@x.com")

	short := "A"
	_, err := f.auth.UpdateProfile(context.Background(), id, UpdateProfileInput{Name: &short})
	requireKind(t, err, apperror.ErrValidation, "name must be at least 2 characters")

	blank := ""
	_, err = f.auth.UpdateProfile(context.Background(), id, UpdateProfileInput{Name: &blank})
	requireKind(t, err, apperror.ErrValidation, "")
}

func TestUpdateProfile_EmptyInputIsNoop(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, "Ann", "ann@x.com")

	u, err := f.auth.UpdateProfile(context.Background(), id, UpdateProfileInput{})
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.Name)
}

func TestLoginOrRegisterGitHub(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.auth.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 42, Login: "octo", Email: "Octo@X.com"})
	require.NoError(t, err)
	assert.Equal(t, "octo", first.User.Name)
	assert.Equal(t, "octo@x.com", first.User.Email)

	again, err := f.auth.LoginOrRegisterGitHub(ctx, &auth.GitHubUser{ID: 42, Login: "octo", Name: "Octo Cat", Email: "octo@x.com"})
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, again.User.ID, "the same GitHub id maps to the same account")
	assert.Equal(t, "Octo Cat", again.User.Name)

	_, err = f.auth.Login(ctx, LoginInput{Email: "octo@x.com", Password: ""})
	requireKind(t, err, apperror.ErrValidation, "")
}

func TestLoginOrRegisterGitHub_EmailTakenByPasswordAccount(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ann", "ann@x.com")

	_, err := f.auth.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 7, Login: "ann", Email: "ann@x.com"})
	requireKind(t, err, apperror.ErrConflict, "User already exists")
}

func TestLoginOrRegisterGitHub_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.LoginOrRegisterGitHub(context.Background(), nil)
	require.Error(t, err)

	_, err = f.auth.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 1, Login: "x"})
	requireKind(t, err, apperror.ErrValidation, "")
}
