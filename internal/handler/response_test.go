package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sakif/volunteer-hub/internal/apperror"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{apperror.ValidationFailed("title", "title is required"), http.StatusBadRequest, KindValidation},
		{apperror.Conflict("User already exists"), http.StatusBadRequest, KindConflict},
		{apperror.InvalidCredentials(), http.StatusBadRequest, KindAuth},
		{apperror.Unauthorized("No token, authorization denied"), http.StatusUnauthorized, KindAuth},
		{apperror.Forbidden("Not authorized to update this event"), http.StatusForbidden, KindForbidden},
		{apperror.NotFound("Event", "abc"), http.StatusNotFound, KindNotFound},
		{apperror.AlreadyJoined("Already joined this event"), http.StatusBadRequest, KindAlreadyJoined},
		{apperror.Full("This event is full"), http.StatusBadRequest, KindCapacity},
		{errors.New("mongo: connection reset"), http.StatusInternalServerError, KindInternal},
		{fmt.Errorf("wrapped: %w", apperror.NotFound("Team", "x")), http.StatusNotFound, KindNotFound},
	}
	for _, tc := range cases {
		status, kind := errorStatus(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.kind, kind, tc.err.Error())
	}
}

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/events", nil)

	writeError(rec, req, zap.NewNop(), apperror.InvalidFields("All fields are required", []apperror.FieldError{
		{Field: "title", Message: "title is required"},
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "All fields are required", env.Message)
	assert.Equal(t, KindValidation, env.Error)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "title", env.Errors[0].Field)
}

func TestWriteError_UnauthorizedSetsChallenge(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil), zap.NewNop(),
		apperror.Unauthorized("Token is not valid"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestWriteError_InternalHidesDetails(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rec := httptest.NewRecorder()

	writeError(rec, httptest.NewRequest(http.MethodGet, "/api/teams", nil), zap.New(core),
		errors.New("dial tcp 10.0.0.7:27017: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "10.0.0.7")
	assert.Contains(t, body, internalErrorMessage)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "/api/teams", logs.All()[0].ContextMap()["path"])
}

func TestWriteData_OmitsEmptyFields(t *testing.T) {
	rec := httptest.NewRecorder()
	writeData(rec, zap.NewNop(), http.StatusCreated, "Team created successfully", map[string]string{"name": "Helpers"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	var raw map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&raw))
	assert.Equal(t, true, raw["success"])
	assert.Equal(t, "Team created successfully", raw["message"])
	assert.NotContains(t, raw, "error")
	assert.NotContains(t, raw, "errors")
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Title string `json:"title"`
		Max   int    `json:"maxParticipants"`
	}

	cases := []struct {
		name    string
		body    string
		limit   int64
		message string
	}{
		{"empty body", "", 1024, "Request body is required"},
		{"malformed", `{"title":`, 1024, "Invalid JSON body"},
		{"wrong type", `{"maxParticipants":"ten"}`, 1024, "maxParticipants has the wrong type"},
		{"two objects", `{"title":"a"} {"title":"b"}`, 1024, "Request body must contain a single JSON object"},
		{"too large", `{"title":"` + strings.Repeat("x", 100) + `"}`, 32, "Request body must not exceed 32 bytes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dst payload
			err := decodeJSON(httptest.NewRecorder(), req, tc.limit, &dst)

			require.Error(t, err)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.message, appErr.Message)
		})
	}

	t.Run("valid with unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"title":"Beach","extra":true,"maxParticipants":5}`))
		var dst payload
		require.NoError(t, decodeJSON(httptest.NewRecorder(), req, 1024, &dst))
		assert.Equal(t, payload{Title: "Beach", Max: 5}, dst)
	})
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	t.Run("no store", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(nil, "memory", zap.NewNop()).HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	})

	t.Run("store up", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(fakePinger{}, "mongo", zap.NewNop()).HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"store":"mongo"`)
	})

	t.Run("store down", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(fakePinger{err: errors.New("no reachable servers")}, "mongo", zap.NewNop()).
			HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.Equal(t, "Store unavailable", env.Message)
		assert.NotContains(t, rec.Body.String(), "no reachable servers")
	})
}
