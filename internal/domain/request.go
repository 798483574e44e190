package domain

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxMessageLength is the longest accepted chat message, in characters.
const MaxMessageLength = 4000

var validate = validator.New(validator.WithRequiredStructEnabled())

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message" validate:"required,min=1,max=4000"`
	Mode      Mode   `json:"mode,omitempty" validate:"omitempty,oneof=auto document_qa structured_query"`
	Stream    *bool  `json:"stream,omitempty"`
}

// Streaming reports whether the caller wants incremental events. Defaults to true.
func (r ChatRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// EffectiveMode returns the requested mode, defaulting to auto.
func (r ChatRequest) EffectiveMode() Mode {
	if r.Mode == "" {
		return ModeAuto
	}
	return r.Mode
}

// Validate checks the request shape and returns a validation fault.
func (r ChatRequest) Validate() error {
	return ValidateStruct(r)
}

// ValidateStruct runs struct-tag validation and folds failures into a single
// validation fault naming each offending field.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return NewValidationError("invalid request", err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, describeFieldError(fe))
	}
	return NewValidationError(strings.Join(parts, "; "), nil)
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return field + " must be at least " + fe.Param() + " characters"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	}
	return field + " is invalid"
}
