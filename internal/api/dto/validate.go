package dto

import (
	"errors"
	"fmt"

	"exectrack/internal/domain"
	"exectrack/internal/scheduler"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator with the custom tags used by this service.
func NewValidator() *validator.Validate {
	validate := validator.New()

	_ = validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		return scheduler.ValidateSpec(fl.Field().String()) == nil
	})
	return validate
}

// Validate checks v and wraps any failure in domain.ErrValidation.
func Validate(validate *validator.Validate, v any) error {
	if err := validate.Struct(v); err != nil {
		return &ValidationError{Details: Details(err)}
	}
	return nil
}

// ValidationError carries per-field failures.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Details)
}

func (e *ValidationError) Unwrap() error {
	return domain.ErrValidation
}

// Details turns validator errors into readable messages.
func Details(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []string{err.Error()}
	}
	details := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		details = append(details, "Field '"+fe.Namespace()+"' failed on the '"+fe.Tag()+"' tag.")
	}
	return details
}
