package models

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleRule is the materialized recurrence rule for one report. It is
// derived from the report's cadence and delivery time and stored with a
// precomputed next due time so the scheduler can poll for due rules without
// keeping per-report timers.
type ScheduleRule struct {
	// ReportID identifies the report this rule fires for. One rule per
	// report; re-registering replaces the previous rule.
	ReportID string `json:"report_id" validate:"required"`

	// CronExpression is the standard 5-field recurrence
	// (minute hour day month weekday).
	CronExpression string `json:"cron_expression" validate:"required"`

	// NextDueAt is the precomputed next fire time in UTC.
	NextDueAt time.Time `json:"next_due_at" validate:"required"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrInvalidScheduleRule is returned when rule validation fails.
var ErrInvalidScheduleRule = errors.New("invalid schedule rule")

// NewScheduleRule creates a rule with the first due time computed from now.
func NewScheduleRule(reportID, cronExpression string) (*ScheduleRule, error) {
	now := time.Now().UTC()
	rule := &ScheduleRule{
		ReportID:       reportID,
		CronExpression: cronExpression,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := rule.calculateNextDueAt(now); err != nil {
		return nil, err
	}

	return rule, nil
}

// Advance moves NextDueAt past the given reference time using the rule's own
// cron expression. Called after a rule has fired.
func (s *ScheduleRule) Advance(after time.Time) error {
	return s.calculateNextDueAt(after)
}

func (s *ScheduleRule) calculateNextDueAt(reference time.Time) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	schedule, err := parser.Parse(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = schedule.Next(reference.UTC())
	s.UpdatedAt = time.Now().UTC()

	return nil
}

// IsDue reports whether the rule should fire at the given time.
func (s *ScheduleRule) IsDue(now time.Time) bool {
	return !s.NextDueAt.After(now)
}

// Validate checks the rule's fields, including cron expression syntax.
func (s *ScheduleRule) Validate() error {
	if s.ReportID == "" || s.CronExpression == "" {
		return ErrInvalidScheduleRule
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(s.CronExpression)

	return err
}
