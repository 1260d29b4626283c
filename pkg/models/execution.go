package models

import (
	"errors"
	"fmt"
	"time"
)

// ExecutionStatus is the lifecycle state of a single report execution.
type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "pending"
	ExecutionStatusProcessing ExecutionStatus = "processing"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusFailed     ExecutionStatus = "failed"
)

// ErrorKind classifies an execution failure.
type ErrorKind string

const (
	// ErrorKindTransient marks failures eligible for the retry path
	// (timeouts, rate limits, upstream 5xx).
	ErrorKindTransient ErrorKind = "transient"

	// ErrorKindPermanent marks failures that terminate the execution
	// immediately (invalid input, content-policy rejection).
	ErrorKindPermanent ErrorKind = "permanent"
)

// ErrInvalidTransition is returned when an execution status change would
// violate the monotonic pending -> processing -> terminal order.
var ErrInvalidTransition = errors.New("invalid execution status transition")

// ExecutionRecord tracks one execution of a report for one scheduled period.
// Identity is (ReportID, PeriodKey); at most one record exists per pair,
// enforced by conditional creation in the persistence layer. Records are
// retained indefinitely for audit and history.
type ExecutionRecord struct {
	ReportID  string          `json:"report_id"  validate:"required"`
	PeriodKey string          `json:"period_key" validate:"required"`
	Status    ExecutionStatus `json:"status"`

	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	Content      string    `json:"content,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	AttemptCount int       `json:"attempt_count"`

	// Delivery outcome is a secondary annotation: a completed execution
	// stays completed even when the send fails.
	Delivered     bool   `json:"delivered"`
	DeliveryError string `json:"delivery_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewExecutionRecord creates a pending record for the given identity pair.
func NewExecutionRecord(reportID, periodKey string, now time.Time) *ExecutionRecord {
	return &ExecutionRecord{
		ReportID:  reportID,
		PeriodKey: periodKey,
		Status:    ExecutionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed
}

// CanTransitionTo reports whether moving from s to next respects the
// monotonic state order.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionStatusPending:
		return next == ExecutionStatusProcessing
	case ExecutionStatusProcessing:
		return next == ExecutionStatusCompleted || next == ExecutionStatusFailed
	default:
		return false
	}
}

// MarkProcessing advances a pending record to processing and stamps the
// start time.
func (e *ExecutionRecord) MarkProcessing(now time.Time) error {
	if !e.Status.CanTransitionTo(ExecutionStatusProcessing) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, ExecutionStatusProcessing)
	}

	e.Status = ExecutionStatusProcessing
	e.StartTime = now
	e.UpdatedAt = now

	return nil
}

// MarkCompleted finishes the execution with generated content.
func (e *ExecutionRecord) MarkCompleted(content string, now time.Time) error {
	if !e.Status.CanTransitionTo(ExecutionStatusCompleted) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, ExecutionStatusCompleted)
	}

	e.Status = ExecutionStatusCompleted
	e.Content = content
	e.EndTime = &now
	e.UpdatedAt = now

	return nil
}

// MarkFailed finishes the execution with a classified error.
func (e *ExecutionRecord) MarkFailed(kind ErrorKind, message string, now time.Time) error {
	if !e.Status.CanTransitionTo(ExecutionStatusFailed) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, ExecutionStatusFailed)
	}

	e.Status = ExecutionStatusFailed
	e.ErrorKind = kind
	e.ErrorMessage = message
	e.EndTime = &now
	e.UpdatedAt = now

	return nil
}

// RecordDeliveryResult annotates the execution with the outcome of the
// delivery handoff. It never changes Status.
func (e *ExecutionRecord) RecordDeliveryResult(err error, now time.Time) {
	if err != nil {
		e.Delivered = false
		e.DeliveryError = err.Error()
	} else {
		e.Delivered = true
		e.DeliveryError = ""
	}

	e.UpdatedAt = now
}

// PeriodKey is the canonical representation of a scheduled period for the
// given cadence, in UTC. It is derived from the trigger's scheduled time,
// never from wall-clock fire time, so redelivered triggers map to the same
// key.
func PeriodKey(cadence Cadence, scheduled time.Time) string {
	scheduled = scheduled.UTC()

	switch cadence {
	case CadenceWeekly:
		year, week := scheduled.ISOWeek()

		return fmt.Sprintf("%d-W%02d", year, week)
	case CadenceMonthly:
		return scheduled.Format("2006-01")
	default:
		return scheduled.Format("2006-01-02")
	}
}
