// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → decodes requests, writes the response envelope
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes documents
//
// Services take repository interfaces, never a concrete store, so the same
// code runs on MongoDB in production and on the in-memory store in tests.
//
// INPUT STRUCTS:
// Every write takes an input struct carrying json and validate tags. The
// handler decodes the body straight into it; the service sanitizes the free
// text, then runs the validator. Rules therefore live in one place no matter
// who calls the service.
//
// ERRORS:
// Expected failures come back as *apperror.AppError (validation, not found,
// forbidden...). Anything else is an infrastructure failure, wrapped with
// fmt.Errorf and left for the handler to log and turn into a 500.
package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sakif/volunteer-hub/internal/apperror"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// newValidator returns a validator that reports fields by their json names,
// so error details match what the client sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateInput runs v against in. When any field is missing and
// requiredMsg is set, requiredMsg becomes the top-level message; otherwise the
// first field's message is used.
func validateInput(v *validator.Validate, in any, requiredMsg string) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating input: %w", err)
	}

	fields := make([]apperror.FieldError, 0, len(verrs))
	missing := false
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = true
		}
		fields = append(fields, apperror.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}

	msg := fields[0].Message
	if missing && requiredMsg != "" {
		msg = requiredMsg
	}
	return apperror.InvalidFields(msg, fields)
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	isText := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "email":
		return "Please include a valid email"
	case "min":
		if isText {
			return fmt.Sprintf("%s must be at least %s characters", name, fe.Param())
		}
		return fmt.Sprintf("%s must have at least %s items", name, fe.Param())
	case "max":
		if isText {
			return fmt.Sprintf("%s must be at most %s characters", name, fe.Param())
		}
		return fmt.Sprintf("%s must have at most %s items", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return name + " is invalid"
	}
}

// trimPtr trims an optional enum-like field, preserving nil (field not sent).
func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}

// parseID converts a path id. An empty id is a client mistake; a malformed
// one can never match a document, so it is reported as not found.
func parseID(resource, raw string) (primitive.ObjectID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return primitive.NilObjectID, apperror.ValidationFailed("id", resource+" ID is required")
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperror.NotFound(resource, raw)
	}
	return id, nil
}

// parseCallerID converts the authenticated user id taken from the token.
func parseCallerID(raw string) (primitive.ObjectID, error) {
	if raw == "" {
		return primitive.NilObjectID, apperror.Unauthorized("User not authenticated")
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperror.Unauthorized("Token is not valid")
	}
	return id, nil
}

// optionalCallerID is parseCallerID for routes where anonymous is fine.
func optionalCallerID(raw string) primitive.ObjectID {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID
	}
	return id
}

// isAppError reports whether err is an expected domain failure rather than
// an infrastructure one.
func isAppError(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr)
}
