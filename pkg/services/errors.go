// Package services provides standardized error types for the template
// administration layer.
package services

import (
	"errors"
	"fmt"

	"github.com/bizbooks/approvalflow/pkg/models"
)

// Business logic errors - these indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrTemplateNil          = errors.New("template cannot be nil")
	ErrTemplateNameRequired = errors.New("template name is required")
	ErrCompanyRequired      = errors.New("company ID is required")
	ErrActivityTypeRequired = errors.New("activity type is required")
	ErrStepNameRequired     = errors.New("step name is required")

	// ErrStepSetMismatch indicates a reorder whose ID list does not exactly
	// match the template's current steps.
	ErrStepSetMismatch = errors.New("ordered step IDs do not match template steps")

	// Business logic conflicts (409 Conflict).
	// ErrTemplateIsDefault refuses deleting the active default template while
	// no replacement has been promoted.
	ErrTemplateIsDefault = errors.New("cannot delete the active default template")

	// ErrTemplateInactive refuses promoting a deactivated template to default.
	ErrTemplateInactive = errors.New("cannot set an inactive template as default")
)

// IsValidationError checks if an error is a validation error that should
// return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrTemplateNil) ||
		errors.Is(err, ErrTemplateNameRequired) ||
		errors.Is(err, ErrCompanyRequired) ||
		errors.Is(err, ErrActivityTypeRequired) ||
		errors.Is(err, ErrStepNameRequired) ||
		errors.Is(err, ErrStepSetMismatch) ||
		errors.Is(err, models.ErrInvalidApproverSpec)
}

// IsConflictError checks if an error is a business logic conflict that should
// return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrTemplateIsDefault) ||
		errors.Is(err, ErrTemplateInactive)
}

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
