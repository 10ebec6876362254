// Knockwatch - Port-Knock and SPA Covert-Channel Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/knockwatch

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/knockwatch/internal/knock"
)

// FieldError describes a single field that failed validation.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Value   any
	Message string
}

// Error returns the human-readable message for this field.
func (e FieldError) Error() string {
	return e.Message
}

// FieldErrors collects the failures from one validation pass. It
// implements error and converts to the API error envelope.
type FieldErrors struct {
	fields []FieldError
}

// Errors returns the individual field failures.
func (ve *FieldErrors) Errors() []FieldError {
	return ve.fields
}

// Error joins all field messages with semicolons.
func (ve *FieldErrors) Error() string {
	if len(ve.fields) == 0 {
		return "validation failed"
	}

	var b strings.Builder
	for i, fe := range ve.fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Message)
	}
	return b.String()
}

// APIError mirrors the error shape the api package writes. Duplicated
// here to avoid an import cycle.
type APIError struct {
	Code    string
	Message string
	Details map[string]any
}

// ToAPIError converts the failures to the API error format. A single
// failure keeps its message and field details; multiple failures are
// listed per field under a "fields" key.
func (ve *FieldErrors) ToAPIError() *APIError {
	const code = "VALIDATION_ERROR"

	switch len(ve.fields) {
	case 0:
		return &APIError{Code: code, Message: "Validation failed"}

	case 1:
		fe := ve.fields[0]
		return &APIError{
			Code:    code,
			Message: fe.Message,
			Details: map[string]any{
				"field": fe.Field,
				"tag":   fe.Tag,
				"value": fe.Value,
			},
		}

	default:
		fields := make([]map[string]any, len(ve.fields))
		messages := make([]string, len(ve.fields))
		for i, fe := range ve.fields {
			fields[i] = map[string]any{
				"field":   fe.Field,
				"tag":     fe.Tag,
				"message": fe.Message,
			}
			messages[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
		}

		return &APIError{
			Code:    code,
			Message: strings.Join(messages, "; "),
			Details: map[string]any{"fields": fields},
		}
	}
}

// getValidator builds the singleton validator on first use.
var getValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// severity accepts detection severity levels case-insensitively so
	// query parameters like "high" pass.
	if err := v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		return knock.Severity(strings.ToUpper(fl.Field().String())).Valid()
	}); err != nil {
		panic(fmt.Sprintf("register severity validator: %v", err))
	}

	return v
})

// GetValidator returns the shared validator instance. Safe for
// concurrent use; struct metadata is cached across calls.
func GetValidator() *validator.Validate {
	return getValidator()
}

// ValidateStruct validates s with the shared validator. Nil means the
// struct passed.
func ValidateStruct(s any) *FieldErrors {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: the argument was not a struct.
		return &FieldErrors{fields: []FieldError{{
			Field:   "unknown",
			Tag:     "unknown",
			Message: err.Error(),
		}}}
	}

	fields := make([]FieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Value:   fe.Value(),
			Message: messageFor(fe),
		}
	}

	return &FieldErrors{fields: fields}
}

// messageFor renders a human-readable message for one field failure.
func messageFor(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "severity":
		return field + " must be one of: CRITICAL, HIGH, MEDIUM, LOW, INFO"
	case "url":
		return field + " must be a valid URL"
	case "ip":
		return field + " must be a valid IP address"
	case "hostname":
		return field + " must be a valid hostname"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	case "min":
		return boundMessage(field, "at least", param, fe.Kind())
	case "max":
		return boundMessage(field, "at most", param, fe.Kind())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// boundMessage words a min/max failure, counting characters for strings
// and plain magnitude for numbers.
func boundMessage(field, bound, param string, kind reflect.Kind) string {
	if kind == reflect.String {
		return fmt.Sprintf("%s must be %s %s characters", field, bound, param)
	}
	return fmt.Sprintf("%s must be %s %s", field, bound, param)
}
