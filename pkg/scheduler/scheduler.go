// Package scheduler is the centralized trigger source: a single poller that
// queries the schedule store for due rules and publishes trigger events,
// regardless of each rule's individual cron expression.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/briefwell/briefwell/pkg/eventbus"
	"github.com/briefwell/briefwell/pkg/events"
	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence"
)

const defaultPollInterval = time.Minute

type Scheduler struct {
	schedules    persistence.ScheduleRepository
	eventBus     eventbus.EventPublisher
	generateID   func() string
	pollInterval time.Duration
	logger       *slog.Logger

	ticker  *time.Ticker
	done    chan struct{}
	started bool
	mu      sync.Mutex
}

func NewScheduler(schedules persistence.ScheduleRepository, eventBus eventbus.EventBus, pollInterval time.Duration, logger *slog.Logger) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	return &Scheduler{
		schedules:    schedules,
		eventBus:     eventBus,
		generateID:   eventBus.GenerateID,
		pollInterval: pollInterval,
		logger:       logger.With("module", "scheduler"),
	}
}

// Start begins the polling loop. Calling Start on a started scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.ticker = time.NewTicker(s.pollInterval)
	s.done = make(chan struct{})
	s.started = true

	go s.poll(ctx)

	s.logger.Info("Scheduler started", "poll_interval", s.pollInterval)

	return nil
}

// Stop shuts the polling loop down.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.ticker.Stop()
	close(s.done)
	s.started = false

	s.logger.Info("Scheduler stopped")

	return nil
}

func (s *Scheduler) poll(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-s.ticker.C:
			s.ProcessDue(ctx, time.Now().UTC())
		}
	}
}

// ProcessDue fires every rule due at the given time: publish the trigger,
// then advance and save the rule. Publish failures leave the rule's due time
// untouched so the next tick retries; the period key derived from the
// scheduled time makes the retry idempotent downstream.
func (s *Scheduler) ProcessDue(ctx context.Context, now time.Time) {
	due, err := s.schedules.DueSchedules(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query due schedules", "error", err)

		return
	}

	if len(due) > 0 {
		s.logger.InfoContext(ctx, "Processing due schedules", "count", len(due))
	}

	for _, rule := range due {
		logger := s.logger.With("report_id", rule.ReportID,
			"cron_expression", rule.CronExpression, "due_at", rule.NextDueAt)

		if err := s.publishTrigger(ctx, rule); err != nil {
			logger.ErrorContext(ctx, "Failed to publish trigger", "error", err)

			continue
		}

		if err := rule.Advance(now); err != nil {
			logger.ErrorContext(ctx, "Failed to advance schedule", "error", err)

			continue
		}

		if err := s.schedules.SaveSchedule(ctx, rule); err != nil {
			logger.ErrorContext(ctx, "Failed to save advanced schedule", "error", err)

			continue
		}

		logger.InfoContext(ctx, "Trigger published", "next_due_at", rule.NextDueAt)
	}
}

func (s *Scheduler) publishTrigger(ctx context.Context, rule *models.ScheduleRule) error {
	event := events.ReportTriggered{
		BaseEvent: events.BaseEvent{
			ID:        s.generateID(),
			Type:      events.ReportTriggeredEvent,
			Timestamp: time.Now().UTC(),
			ReportID:  rule.ReportID,
		},
		ScheduledFor: rule.NextDueAt,
	}

	return s.eventBus.Publish(ctx, rule.ReportID, event)
}
