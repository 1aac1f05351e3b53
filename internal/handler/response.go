package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ENVELOPE:
// Every response from the API has the same shape:
//
//	{"success": true,  "message": "Event created successfully", "data": {...}}
//	{"success": false, "message": "Event not found with id ...", "error": "not_found"}
//	{"success": false, "message": "All fields are required", "error": "validation_error",
//	 "errors": [{"field": "title", "message": "title is required"}]}
//
// The client checks `success` first, shows `message` to the user, and
// switches on `error` when it needs to react to a specific failure.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sakif/volunteer-hub/internal/apperror"
)

// Machine-readable error kinds carried in Envelope.Error.
const (
	KindValidation    = "validation_error"
	KindConflict      = "conflict"
	KindAuth          = "auth_error"
	KindForbidden     = "forbidden"
	KindNotFound      = "not_found"
	KindAlreadyJoined = "already_joined"
	KindCapacity      = "capacity_reached"
	KindRateLimited   = "rate_limited"
	KindInternal      = "internal_error"
)

// internalErrorMessage is the only thing a client learns about a 500.
const internalErrorMessage = "An internal error occurred"

// Envelope is the standard body of every API response.
type Envelope struct {
	Success bool                  `json:"success"`
	Message string                `json:"message,omitempty"`
	Data    any                   `json:"data,omitempty"`
	Error   string                `json:"error,omitempty"`
	Errors  []apperror.FieldError `json:"errors,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE writing the body. Once Encode calls
// w.Write, the headers are on the wire and later changes are ignored.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already sent; all we can do is log.
		logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// writeData sends a success envelope.
func writeData(w http.ResponseWriter, logger *zap.Logger, status int, message string, data any) {
	writeJSON(w, logger, status, Envelope{Success: true, Message: message, Data: data})
}

// errorStatus maps a domain error to its HTTP status and error kind.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer should not know about HTTP. It says *what* went wrong
// (apperror.ErrNotFound); this function decides what that means on the wire.
//
// Conflict and bad credentials are 400, not 409/401: clients of this API
// treat both as "fix your input" and 401 is reserved for token problems.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, KindValidation
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusBadRequest, KindConflict
	case errors.Is(err, apperror.ErrCredentials):
		return http.StatusBadRequest, KindAuth
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, KindAuth
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, KindForbidden
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, KindNotFound
	case errors.Is(err, apperror.ErrAlreadyJoined):
		return http.StatusBadRequest, KindAlreadyJoined
	case errors.Is(err, apperror.ErrCapacity):
		return http.StatusBadRequest, KindCapacity
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

// writeError translates err into an error envelope.
//
// Anything that is not an *apperror.AppError is a server fault. Its text can
// contain query fragments or hostnames, so it is logged with the request id
// and the client gets a fixed message it can quote to support.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("request failed",
			zap.String("requestID", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, logger, http.StatusInternalServerError, Envelope{
			Message: internalErrorMessage,
			Error:   KindInternal,
		})
		return
	}

	status, kind := errorStatus(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="volunteer-hub"`)
	}
	writeJSON(w, logger, status, Envelope{
		Message: appErr.Message,
		Error:   kind,
		Errors:  appErr.Fields,
	})
}

// decodeJSON reads the request body into dst.
//
// The body is capped at maxBytes, a single JSON value is required, and
// unknown fields are ignored so older clients sending extra keys still work.
// Every failure comes back as a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "Request body is required")
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body", fmt.Sprintf("Request body must not exceed %d bytes", maxErr.Limit))
		case errors.As(err, &typeErr):
			return apperror.ValidationFailed(typeErr.Field, fmt.Sprintf("%s has the wrong type", typeErr.Field))
		default:
			return apperror.ValidationFailed("body", "Invalid JSON body")
		}
	}
	if dec.More() {
		return apperror.ValidationFailed("body", "Request body must contain a single JSON object")
	}
	return nil
}
