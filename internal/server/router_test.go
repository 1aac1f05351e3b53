package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sakif/volunteer-hub/internal/auth"
	"github.com/sakif/volunteer-hub/internal/metrics"
	"github.com/sakif/volunteer-hub/internal/middleware"
	"github.com/sakif/volunteer-hub/internal/repository/memory"
)

// envelope mirrors handler.Envelope with Data left raw so each test can
// decode it into the shape it expects.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

type apiClient struct {
	t *testing.T
	h http.Handler
}

func newTestAPI(t *testing.T, authPerMinute int) *apiClient {
	t.Helper()
	tokens, err := auth.NewTokenService("router-test-secret-0123456789abcdef", time.Hour)
	require.NoError(t, err)

	authLimit := middleware.NewMemoryLimiter(authPerMinute)
	apiLimit := middleware.NewMemoryLimiter(0)
	t.Cleanup(authLimit.Close)
	t.Cleanup(apiLimit.Close)

	h := NewRouter(Deps{
		Stores:         memory.New().Stores(),
		Backend:        "memory",
		Tokens:         tokens,
		Passwords:      auth.NewPasswordService(4),
		Metrics:        metrics.New(),
		AuthLimit:      authLimit,
		APILimit:       apiLimit,
		AllowedOrigins: []string{"http://localhost:3000"},
		MaxBodyBytes:   1 << 20,
		Logger:         zap.NewNop(),
	})
	return &apiClient{t: t, h: h}
}

func (c *apiClient) do(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

type signedIn struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"user"`
}

func (c *apiClient) register(name, email string) signedIn {
	c.t.Helper()
	rec, env := c.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "secret123",
	})
	require.Equal(c.t, http.StatusCreated, rec.Code, env.Message)
	var out signedIn
	require.NoError(c.t, json.Unmarshal(env.Data, &out))
	return out
}

type idView struct {
	ID string `json:"id"`
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func eventBody(maxParticipants int) map[string]any {
	return map[string]any{
		"title":           "Beach Cleanup",
		"description":     "Bring gloves",
		"date":            "2030-06-01T09:00:00Z",
		"location":        "Santa Monica",
		"category":        "environment",
		"maxParticipants": maxParticipants,
	}
}

// =========================================================================
// AUTH
// =========================================================================

func TestAuthFlow(t *testing.T) {
	api := newTestAPI(t, 0)

	ann := api.register("Ann", "Ann@Example.com")
	assert.NotEmpty(t, ann.Token)
	assert.Equal(t, "ann@example.com", ann.User.Email)

	rec, env := api.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ann Again", "email": "ann@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "conflict", env.Error)

	rec, env = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ann@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid credentials", env.Message)

	rec, env = api.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ann@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Login successful", env.Message)
	login := decodeData[signedIn](t, env)

	rec, env = api.do(http.MethodPut, "/api/auth/profile", login.Token, map[string]any{
		"bio": "Weekend volunteer", "skills": []string{"first aid"},
	})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)

	rec, env = api.do(http.MethodGet, "/api/auth/profile", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeData[struct {
		Bio          string            `json:"bio"`
		Skills       []string          `json:"skills"`
		JoinedEvents []json.RawMessage `json:"joinedEvents"`
	}](t, env)
	assert.Equal(t, "Weekend volunteer", profile.Bio)
	assert.Equal(t, []string{"first aid"}, profile.Skills)
	assert.NotNil(t, profile.JoinedEvents)
}

func TestAuth_TokenMessages(t *testing.T) {
	api := newTestAPI(t, 0)

	rec, env := api.do(http.MethodGet, "/api/auth/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No token, authorization denied", env.Message)

	rec, env = api.do(http.MethodPost, "/api/events", "not-a-jwt", eventBody(0))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token is not valid", env.Message)
}

func TestAuth_RateLimited(t *testing.T) {
	api := newTestAPI(t, 2)
	creds := map[string]string{"email": "nobody@example.com", "password": "secret123"}

	for range 2 {
		rec, _ := api.do(http.MethodPost, "/api/auth/login", "", creds)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec, env := api.do(http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", env.Error)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Reads are under the separate API scope and stay available.
	rec, _ = api.do(http.MethodGet, "/api/events", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGitHubRoutesAbsentWhenUnconfigured(t *testing.T) {
	api := newTestAPI(t, 0)
	rec, _ := api.do(http.MethodGet, "/api/auth/github/login", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =========================================================================
// EVENTS
// =========================================================================

func TestEvents_CreateJoinFull(t *testing.T) {
	api := newTestAPI(t, 0)
	ann := api.register("Ann", "ann@example.com")
	bob := api.register("Bob", "bob@example.com")
	cat := api.register("Cat", "cat@example.com")

	rec, env := api.do(http.MethodPost, "/api/events", ann.Token, map[string]any{"title": "Only a title"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "All fields are required", env.Message)
	assert.NotEmpty(t, env.Errors)

	rec, env = api.do(http.MethodPost, "/api/events", ann.Token, eventBody(2))
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)
	event := decodeData[idView](t, env)

	rec, env = api.do(http.MethodPost, "/api/events/"+event.ID+"/join", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	joined := decodeData[struct {
		Participants []struct {
			Name string `json:"name"`
		} `json:"participants"`
	}](t, env)
	require.Len(t, joined.Participants, 2)
	assert.Equal(t, "Bob", joined.Participants[1].Name)

	rec, env = api.do(http.MethodPost, "/api/events/"+event.ID+"/join", bob.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Already joined this event", env.Message)

	rec, env = api.do(http.MethodPost, "/api/events/"+event.ID+"/join", cat.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "This event is full", env.Message)

	rec, env = api.do(http.MethodPut, "/api/events/"+event.ID, bob.Token, map[string]string{"title": "Mine now"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Not authorized to update this event", env.Message)

	rec, env = api.do(http.MethodGet, "/api/events/000000000000000000000000", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Event not found with id 000000000000000000000000", env.Message)

	rec, _ = api.do(http.MethodGet, "/api/events/not-hex", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents_ListFilters(t *testing.T) {
	api := newTestAPI(t, 0)
	ann := api.register("Ann", "ann@example.com")

	body := eventBody(0)
	rec, _ := api.do(http.MethodPost, "/api/events", ann.Token, body)
	require.Equal(t, http.StatusCreated, rec.Code)
	body["category"] = "education"
	rec, _ = api.do(http.MethodPost, "/api/events", ann.Token, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	_, env := api.do(http.MethodGet, "/api/events", "", nil)
	assert.Len(t, decodeData[[]idView](t, env), 2)

	_, env = api.do(http.MethodGet, "/api/events?category=education", "", nil)
	assert.Len(t, decodeData[[]idView](t, env), 1)

	_, env = api.do(http.MethodGet, "/api/events?category=education,environment", "", nil)
	assert.Len(t, decodeData[[]idView](t, env), 2)
}

// =========================================================================
// TEAMS
// =========================================================================

func TestTeams_PrivateVisibility(t *testing.T) {
	api := newTestAPI(t, 0)
	ann := api.register("Ann", "ann@example.com")
	bob := api.register("Bob", "bob@example.com")

	rec, env := api.do(http.MethodPost, "/api/teams", ann.Token, map[string]any{
		"name": "Inner Circle", "description": "Invite only", "category": "community", "isPrivate": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)
	team := decodeData[idView](t, env)

	_, env = api.do(http.MethodGet, "/api/teams", "", nil)
	assert.Empty(t, decodeData[[]idView](t, env), "anonymous callers see no private teams")

	_, env = api.do(http.MethodGet, "/api/teams", ann.Token, nil)
	assert.Len(t, decodeData[[]idView](t, env), 1, "members see their private teams")

	rec, _ = api.do(http.MethodGet, "/api/teams/"+team.ID, bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = api.do(http.MethodPost, "/api/teams/"+team.ID+"/join", bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "This team is private", env.Message)

	rec, _ = api.do(http.MethodGet, "/api/teams/"+team.ID, ann.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =========================================================================
// HELP REQUESTS
// =========================================================================

func TestHelpRequests_Volunteering(t *testing.T) {
	api := newTestAPI(t, 0)
	ann := api.register("Ann", "ann@example.com")
	bob := api.register("Bob", "bob@example.com")
	cat := api.register("Cat", "cat@example.com")

	rec, env := api.do(http.MethodPost, "/api/help-requests", ann.Token, map[string]any{
		"title": "Groceries", "description": "Weekly shop", "location": "Oak Street",
		"urgencyLevel": "urgent", "volunteersNeeded": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", env.Error)

	rec, env = api.do(http.MethodPost, "/api/help-requests", ann.Token, map[string]any{
		"title": "Groceries", "description": "Weekly shop", "location": "Oak Street",
		"urgencyLevel": "high", "volunteersNeeded": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, env.Message)
	req := decodeData[idView](t, env)

	rec, env = api.do(http.MethodPost, "/api/help-requests/"+req.ID+"/volunteer", ann.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "You cannot volunteer for your own help request", env.Message)

	rec, env = api.do(http.MethodPost, "/api/help-requests/"+req.ID+"/volunteer", bob.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	assert.Equal(t, "Successfully volunteered", env.Message)

	rec, env = api.do(http.MethodPost, "/api/help-requests/"+req.ID+"/volunteer", cat.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "This help request already has enough volunteers", env.Message)

	rec, env = api.do(http.MethodPut, "/api/help-requests/"+req.ID, ann.Token, map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	updated := decodeData[struct {
		Status string `json:"status"`
	}](t, env)
	assert.Equal(t, "completed", updated.Status)
}

// =========================================================================
// OPERATIONAL
// =========================================================================

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t, 0)

	rec, env := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	api.register("Ann", "ann@example.com")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	api.h.ServeHTTP(mrec, req)
	require.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), `volunteer_hub_users_registered_total{method="password"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	api := newTestAPI(t, 0)

	req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	api.h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOversizedBodyRejected(t *testing.T) {
	api := newTestAPI(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(strings.Repeat("x", 2<<20)))
	rec := httptest.NewRecorder()
	api.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
