// Package services provides the management operations behind the API:
// report CRUD, schedule synchronization and manual command submission.
package services

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence"
)

// Validation errors (400 Bad Request).
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrEmptyOwnerID   = errors.New("owner ID cannot be empty")
)

// Business logic conflicts (409 Conflict).
var (
	ErrReportInactive         = errors.New("report is inactive")
	ErrExecutionNotResendable = errors.New("only completed executions can be resent")
	ErrExecutionNotResumable  = errors.New("execution already reached a terminal status")
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return true
	}

	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptyOwnerID) ||
		errors.Is(err, models.ErrInvalidCadence) ||
		errors.Is(err, models.ErrInvalidTimeFormat) ||
		errors.Is(err, models.ErrNoTopics)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrReportInactive) ||
		errors.Is(err, ErrExecutionNotResendable) ||
		errors.Is(err, ErrExecutionNotResumable)
}

// IsNotFoundError checks if an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return persistence.IsReportNotFound(err) ||
		persistence.IsExecutionNotFound(err)
}
