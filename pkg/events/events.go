// Package events defines event types for the report execution lifecycle.
package events

import (
	"time"
)

type EventType string

// Topic is the event bus topic carrying all execution lifecycle events.
const Topic = "briefwell.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// ReportTriggeredEvent fires when a schedule rule comes due. Delivery
	// is at-least-once; consumers rely on the period key for dedup.
	ReportTriggeredEvent EventType = "report.triggered"

	// Execution lifecycle events.
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"

	// DeliveryFailedEvent marks a completed execution whose send failed.
	DeliveryFailedEvent EventType = "delivery.failed"

	// ReportDeactivatedEvent fires when the engine turns a report off
	// after repeated fatal failures. Notification-worthy.
	ReportDeactivatedEvent EventType = "report.deactivated"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	ReportID  string         `json:"report_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ReportTriggered carries the scheduled period a trigger fired for. The
// scheduled time, not the wall-clock fire time, determines the period key.
type ReportTriggered struct {
	BaseEvent

	ScheduledFor time.Time `json:"scheduled_for"`
}

func (r ReportTriggered) GetType() EventType {
	return ReportTriggeredEvent
}

type ExecutionCompleted struct {
	BaseEvent

	PeriodKey string        `json:"period_key"`
	Delivered bool          `json:"delivered"`
	Duration  time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	PeriodKey    string        `json:"period_key"`
	ErrorKind    string        `json:"error_kind"`
	ErrorMessage string        `json:"error_message"`
	AttemptCount int           `json:"attempt_count"`
	Duration     time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type DeliveryFailed struct {
	BaseEvent

	PeriodKey string `json:"period_key"`
	Recipient string `json:"recipient"`
	Error     string `json:"error"`
}

func (d DeliveryFailed) GetType() EventType {
	return DeliveryFailedEvent
}

type ReportDeactivated struct {
	BaseEvent

	ConsecutiveFailures int `json:"consecutive_failures"`
}

func (r ReportDeactivated) GetType() EventType {
	return ReportDeactivatedEvent
}
