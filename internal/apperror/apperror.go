// Package apperror defines the error taxonomy shared by the service and
// handler layers.
//
// Services return *AppError values that wrap one of the sentinel errors below.
// Handlers never look at messages to decide what happened: they use errors.Is
// against the sentinels and map each kind to an HTTP status in one place
// (handler.writeError). Anything that is not an *AppError is a server error.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("conflict")
	ErrForbidden     = errors.New("forbidden")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrCredentials   = errors.New("invalid credentials")
	ErrAlreadyJoined = errors.New("already joined")
	ErrCapacity      = errors.New("capacity reached")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type AppError struct {
	Err     error        // sentinel kind
	Message string       // Human-readable error message
	Field   string       // Optional: field causing the error
	Fields  []FieldError // Optional: every invalid field, for request validation
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// NotFoundMessage is NotFound with a caller-supplied message, for lookups
// that are not keyed by an id the client sent (e.g. the caller's own profile).
func NotFoundMessage(message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// InvalidFields reports several field problems at once. The first field is
// copied into Field so single-field consumers still see something useful.
func InvalidFields(message string, fields []FieldError) *AppError {
	e := &AppError{
		Err:     ErrValidation,
		Message: message,
		Fields:  fields,
	}
	if len(fields) > 0 {
		e.Field = fields[0].Field
	}
	return e
}

// Conflict reports a duplicate of a unique attribute.
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is a missing, malformed or expired bearer token.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// InvalidCredentials is the single login failure. It deliberately carries the
// same message whether the email was unknown or the password was wrong.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrCredentials,
		Message: "Invalid credentials",
	}
}

// AlreadyJoined reports a repeated join/volunteer attempt.
func AlreadyJoined(message string) *AppError {
	return &AppError{
		Err:     ErrAlreadyJoined,
		Message: message,
	}
}

// Full reports that a capped membership list has no room left.
func Full(message string) *AppError {
	return &AppError{
		Err:     ErrCapacity,
		Message: message,
	}
}
