// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrReportNotFound indicates a report definition was not found by the given identifier.
	ErrReportNotFound = errors.New("report not found")

	// ErrExecutionNotFound indicates no execution record exists for the given key pair.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionExists indicates the conditional create lost the race: a
	// record for the (reportID, periodKey) pair already exists. Expected
	// under duplicate trigger delivery; callers treat it as "already in
	// flight or already done", not as a failure.
	ErrExecutionExists = errors.New("execution already exists")

	// ErrStatusConflict indicates a conditional update found the stored
	// status different from the expected one, meaning another writer got
	// there first.
	ErrStatusConflict = errors.New("execution status conflict")

	// ErrScheduleNotFound indicates no schedule rule exists for the report.
	ErrScheduleNotFound = errors.New("schedule rule not found")
)

// ExecutionError wraps execution-record errors with operation context.
type ExecutionError struct {
	Op        string // Operation being performed (e.g., "Create", "Update")
	ReportID  string
	PeriodKey string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution (%s, %s): %v", e.Op, e.ReportID, e.PeriodKey, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for execution errors.
func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, reportID, periodKey string, err error) *ExecutionError {
	return &ExecutionError{
		Op:        op,
		ReportID:  reportID,
		PeriodKey: periodKey,
		Err:       err,
	}
}

// ReportError wraps report-definition errors with operation context.
type ReportError struct {
	Op       string
	ReportID string
	Err      error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("%s operation failed for report %s: %v", e.Op, e.ReportID, e.Err)
}

func (e *ReportError) Unwrap() error {
	return e.Err
}

func (e *ReportError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsReportNotFound checks if an error indicates a report was not found.
func IsReportNotFound(err error) bool {
	return errors.Is(err, ErrReportNotFound)
}

// IsExecutionExists checks if an error indicates a lost conditional create.
func IsExecutionExists(err error) bool {
	return errors.Is(err, ErrExecutionExists)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsStatusConflict checks if an error indicates a lost conditional update.
func IsStatusConflict(err error) bool {
	return errors.Is(err, ErrStatusConflict)
}
