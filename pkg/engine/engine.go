// Package engine runs report executions: it claims the (report, period)
// slot, drives the status state machine, invokes research with a bounded
// retry budget and hands completed content to delivery.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/briefwell/briefwell/pkg/delivery"
	"github.com/briefwell/briefwell/pkg/eventbus"
	"github.com/briefwell/briefwell/pkg/events"
	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence"
	"github.com/briefwell/briefwell/pkg/research"
)

// ResultKind tags what StartExecution did for a trigger.
type ResultKind string

const (
	// ResultCompleted means research succeeded and the record is completed,
	// whatever the delivery outcome was.
	ResultCompleted ResultKind = "completed"

	// ResultFailed means the execution exhausted its options and is failed.
	ResultFailed ResultKind = "failed"

	// ResultAlreadyExists means another trigger already claimed this period.
	// Not an error; at-least-once trigger delivery makes this routine.
	ResultAlreadyExists ResultKind = "already_exists"
)

type Result struct {
	Kind   ResultKind
	Record *models.ExecutionRecord
}

// Config tunes the engine's retry and shutoff behavior.
type Config struct {
	// MaxAttempts bounds research attempts per execution, first try
	// included. Only transient failures are retried.
	MaxAttempts int

	// RetryBackoff is the base delay between attempts, scaled linearly by
	// the attempt number.
	RetryBackoff time.Duration

	// DeactivateAfter is the number of consecutive failed executions that
	// turns a report off. Zero disables the shutoff.
	DeactivateAfter int
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		RetryBackoff:    30 * time.Second,
		DeactivateAfter: 3,
	}
}

type Engine struct {
	persistence persistence.Persistence
	researcher  research.Researcher
	deliverer   delivery.Deliverer
	eventBus    eventbus.EventBus
	config      Config
	workerID    string
	logger      *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEngine(
	p persistence.Persistence,
	researcher research.Researcher,
	deliverer delivery.Deliverer,
	eventBus eventbus.EventBus,
	config Config,
	workerID string,
	logger *slog.Logger,
) *Engine {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = DefaultConfig().RetryBackoff
	}

	return &Engine{
		persistence: p,
		researcher:  researcher,
		deliverer:   deliverer,
		eventBus:    eventBus,
		config:      config,
		workerID:    workerID,
		logger:      logger.With("module", "engine", "worker_id", workerID),
		now:         func() time.Time { return time.Now().UTC() },
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartExecution claims the (reportID, periodKey) slot and runs the
// execution to a terminal status. The conditional create is the single
// serialization point: of any number of concurrent triggers for the same
// period, exactly one proceeds past it.
//
// On ResultAlreadyExists the Record carries the winning execution when it
// could be read back; it is nil if that lookup failed.
func (e *Engine) StartExecution(ctx context.Context, report *models.ReportDefinition, periodKey string) (*Result, error) {
	logger := e.logger.With("report_id", report.ID, "period_key", periodKey)

	executions := e.persistence.ExecutionRepository()

	record := models.NewExecutionRecord(report.ID, periodKey, e.now())

	if err := executions.CreateExecution(ctx, record); err != nil {
		if persistence.IsExecutionExists(err) {
			logger.InfoContext(ctx, "Period already claimed, skipping")

			existing, lookupErr := executions.ExecutionByKey(ctx, report.ID, periodKey)
			if lookupErr != nil {
				logger.WarnContext(ctx, "Failed to read back winning execution", "error", lookupErr)

				return &Result{Kind: ResultAlreadyExists}, nil
			}

			return &Result{Kind: ResultAlreadyExists, Record: existing}, nil
		}

		return nil, fmt.Errorf("failed to create execution record: %w", err)
	}

	logger.InfoContext(ctx, "Execution claimed")

	if err := record.MarkProcessing(e.now()); err != nil {
		return nil, err
	}

	if err := executions.UpdateExecution(ctx, record, models.ExecutionStatusPending); err != nil {
		return nil, fmt.Errorf("failed to start execution: %w", err)
	}

	return e.runProcessing(ctx, report.Snapshot(), record, logger)
}

// ResumeExecution picks up an execution a crashed worker left behind. A
// terminal record is returned as-is; a pending or processing record is
// driven to a terminal status, continuing from the recorded attempt count.
func (e *Engine) ResumeExecution(ctx context.Context, report *models.ReportDefinition, periodKey string) (*Result, error) {
	logger := e.logger.With("report_id", report.ID, "period_key", periodKey)

	executions := e.persistence.ExecutionRepository()

	record, err := executions.ExecutionByKey(ctx, report.ID, periodKey)
	if err != nil {
		return nil, err
	}

	switch record.Status {
	case models.ExecutionStatusCompleted:
		return &Result{Kind: ResultCompleted, Record: record}, nil
	case models.ExecutionStatusFailed:
		return &Result{Kind: ResultFailed, Record: record}, nil
	case models.ExecutionStatusPending:
		if err := record.MarkProcessing(e.now()); err != nil {
			return nil, err
		}

		if err := executions.UpdateExecution(ctx, record, models.ExecutionStatusPending); err != nil {
			if persistence.IsStatusConflict(err) {
				logger.InfoContext(ctx, "Execution taken over by another worker")

				return &Result{Kind: ResultAlreadyExists, Record: record}, nil
			}

			return nil, err
		}
	case models.ExecutionStatusProcessing:
		logger.InfoContext(ctx, "Resuming in-flight execution",
			"attempt_count", record.AttemptCount)
	}

	return e.runProcessing(ctx, report.Snapshot(), record, logger)
}

// runProcessing drives a processing record to a terminal status.
func (e *Engine) runProcessing(ctx context.Context, snapshot models.Snapshot, record *models.ExecutionRecord, logger *slog.Logger) (*Result, error) {
	content, kind, researchErr := e.runResearch(ctx, snapshot, record, logger)
	if researchErr != nil {
		return e.failExecution(ctx, record, kind, researchErr, logger)
	}

	return e.completeExecution(ctx, snapshot, record, content, logger)
}

// runResearch makes up to MaxAttempts research calls, persisting the attempt
// count between tries so a resumed execution does not restart its budget.
// Permanent failures stop the loop immediately.
func (e *Engine) runResearch(ctx context.Context, snapshot models.Snapshot, record *models.ExecutionRecord, logger *slog.Logger) (string, models.ErrorKind, error) {
	executions := e.persistence.ExecutionRepository()

	request := research.Request{
		Topics:   snapshot.Topics,
		Keywords: snapshot.Keywords,
		Window:   record.PeriodKey,
	}

	lastErr := fmt.Errorf("retry budget of %d attempts exhausted", e.config.MaxAttempts)

	for record.AttemptCount < e.config.MaxAttempts {
		record.AttemptCount++
		record.UpdatedAt = e.now()

		if err := executions.UpdateExecution(ctx, record, models.ExecutionStatusProcessing); err != nil {
			return "", models.ErrorKindTransient, fmt.Errorf("failed to record attempt: %w", err)
		}

		logger.InfoContext(ctx, "Running research",
			"attempt", record.AttemptCount, "max_attempts", e.config.MaxAttempts)

		content, err := e.researcher.Research(ctx, request)
		if err == nil {
			return content, "", nil
		}

		lastErr = err
		kind := research.Classify(err)

		logger.WarnContext(ctx, "Research attempt failed",
			"attempt", record.AttemptCount, "error_kind", kind, "error", err)

		if kind == models.ErrorKindPermanent {
			return "", models.ErrorKindPermanent, err
		}

		if record.AttemptCount < e.config.MaxAttempts {
			backoff := e.config.RetryBackoff * time.Duration(record.AttemptCount)
			if err := e.sleep(ctx, backoff); err != nil {
				return "", models.ErrorKindTransient, err
			}
		}
	}

	return "", models.ErrorKindTransient, lastErr
}

func (e *Engine) completeExecution(ctx context.Context, snapshot models.Snapshot, record *models.ExecutionRecord, content string, logger *slog.Logger) (*Result, error) {
	executions := e.persistence.ExecutionRepository()

	if err := record.MarkCompleted(content, e.now()); err != nil {
		return nil, err
	}

	if err := executions.UpdateExecution(ctx, record, models.ExecutionStatusProcessing); err != nil {
		return nil, fmt.Errorf("failed to complete execution: %w", err)
	}

	logger.InfoContext(ctx, "Execution completed", "attempt_count", record.AttemptCount)

	// Delivery happens after the completed status is durable. Its outcome
	// is an annotation on the record, never a status change.
	deliveryErr := e.deliverer.Deliver(ctx, delivery.Format(snapshot, record))

	record.RecordDeliveryResult(deliveryErr, e.now())

	if err := executions.UpdateExecution(ctx, record, models.ExecutionStatusCompleted); err != nil {
		logger.ErrorContext(ctx, "Failed to record delivery outcome", "error", err)
	}

	if deliveryErr != nil {
		logger.ErrorContext(ctx, "Delivery failed on completed execution",
			"recipient", snapshot.Recipient, "error", deliveryErr)

		e.publish(ctx, record.ReportID, events.DeliveryFailed{
			BaseEvent: e.baseEvent(events.DeliveryFailedEvent, record.ReportID),
			PeriodKey: record.PeriodKey,
			Recipient: snapshot.Recipient,
			Error:     deliveryErr.Error(),
		})
	}

	e.publish(ctx, record.ReportID, events.ExecutionCompleted{
		BaseEvent: e.baseEvent(events.ExecutionCompletedEvent, record.ReportID),
		PeriodKey: record.PeriodKey,
		Delivered: record.Delivered,
		Duration:  e.duration(record),
	})

	return &Result{Kind: ResultCompleted, Record: record}, nil
}

func (e *Engine) failExecution(ctx context.Context, record *models.ExecutionRecord, kind models.ErrorKind, cause error, logger *slog.Logger) (*Result, error) {
	executions := e.persistence.ExecutionRepository()

	if err := record.MarkFailed(kind, cause.Error(), e.now()); err != nil {
		return nil, err
	}

	if err := executions.UpdateExecution(ctx, record, models.ExecutionStatusProcessing); err != nil {
		return nil, fmt.Errorf("failed to fail execution: %w", err)
	}

	logger.ErrorContext(ctx, "Execution failed",
		"error_kind", kind, "attempt_count", record.AttemptCount, "error", cause)

	e.publish(ctx, record.ReportID, events.ExecutionFailed{
		BaseEvent:    e.baseEvent(events.ExecutionFailedEvent, record.ReportID),
		PeriodKey:    record.PeriodKey,
		ErrorKind:    string(kind),
		ErrorMessage: cause.Error(),
		AttemptCount: record.AttemptCount,
		Duration:     e.duration(record),
	})

	e.enforceFailureShutoff(ctx, record.ReportID, logger)

	return &Result{Kind: ResultFailed, Record: record}, nil
}

// enforceFailureShutoff deactivates a report whose most recent executions
// all failed, so a misconfigured report stops burning research quota until
// its owner intervenes. Errors here are logged, not propagated; the failed
// execution is already durable.
func (e *Engine) enforceFailureShutoff(ctx context.Context, reportID string, logger *slog.Logger) {
	if e.config.DeactivateAfter <= 0 {
		return
	}

	recent, err := e.persistence.ExecutionRepository().ExecutionsByReport(ctx, reportID, e.config.DeactivateAfter)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to inspect execution history", "error", err)

		return
	}

	if len(recent) < e.config.DeactivateAfter {
		return
	}

	for _, record := range recent {
		if record.Status != models.ExecutionStatusFailed {
			return
		}
	}

	if err := e.persistence.ReportRepository().SetReportActive(ctx, reportID, false); err != nil {
		logger.ErrorContext(ctx, "Failed to deactivate report", "error", err)

		return
	}

	if err := e.persistence.ScheduleRepository().DeleteSchedule(ctx, reportID); err != nil {
		logger.ErrorContext(ctx, "Failed to remove schedule of deactivated report", "error", err)
	}

	logger.WarnContext(ctx, "Report deactivated after consecutive failures",
		"consecutive_failures", e.config.DeactivateAfter)

	e.publish(ctx, reportID, events.ReportDeactivated{
		BaseEvent:           e.baseEvent(events.ReportDeactivatedEvent, reportID),
		ConsecutiveFailures: e.config.DeactivateAfter,
	})
}

// Resend re-sends a completed execution's stored content. The record's
// status never changes; only the delivery annotation is refreshed.
func (e *Engine) Resend(ctx context.Context, report *models.ReportDefinition, periodKey string) error {
	logger := e.logger.With("report_id", report.ID, "period_key", periodKey)

	executions := e.persistence.ExecutionRepository()

	record, err := executions.ExecutionByKey(ctx, report.ID, periodKey)
	if err != nil {
		return err
	}

	if record.Status != models.ExecutionStatusCompleted {
		return fmt.Errorf("cannot resend execution in status %s", record.Status)
	}

	snapshot := report.Snapshot()

	deliveryErr := e.deliverer.Deliver(ctx, delivery.Format(snapshot, record))

	record.RecordDeliveryResult(deliveryErr, e.now())

	if err := executions.UpdateExecution(ctx, record, models.ExecutionStatusCompleted); err != nil {
		return fmt.Errorf("failed to record resend outcome: %w", err)
	}

	if deliveryErr != nil {
		logger.ErrorContext(ctx, "Resend failed",
			"recipient", snapshot.Recipient, "error", deliveryErr)

		e.publish(ctx, record.ReportID, events.DeliveryFailed{
			BaseEvent: e.baseEvent(events.DeliveryFailedEvent, record.ReportID),
			PeriodKey: record.PeriodKey,
			Recipient: snapshot.Recipient,
			Error:     deliveryErr.Error(),
		})

		return deliveryErr
	}

	logger.InfoContext(ctx, "Resend delivered", "recipient", snapshot.Recipient)

	return nil
}

func (e *Engine) baseEvent(eventType events.EventType, reportID string) events.BaseEvent {
	var id string
	if e.eventBus != nil {
		id = e.eventBus.GenerateID()
	}

	return events.BaseEvent{
		ID:        id,
		Type:      eventType,
		Timestamp: e.now(),
		ReportID:  reportID,
		WorkerID:  e.workerID,
	}
}

func (e *Engine) duration(record *models.ExecutionRecord) time.Duration {
	if record.EndTime == nil {
		return 0
	}

	return record.EndTime.Sub(record.StartTime)
}

func (e *Engine) publish(ctx context.Context, reportID string, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	if err := e.eventBus.Publish(ctx, reportID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
