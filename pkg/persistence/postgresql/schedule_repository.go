package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence"
)

// ScheduleRepository handles schedule-rule database operations.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

// SaveSchedule upserts the rule for a report; registering twice replaces.
func (r *ScheduleRepository) SaveSchedule(ctx context.Context, rule *models.ScheduleRule) error {
	query := `
		INSERT INTO schedules (report_id, cron_expression, next_due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (report_id) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression,
			next_due_at = EXCLUDED.next_due_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		rule.ReportID,
		rule.CronExpression,
		rule.NextDueAt,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	return nil
}

// DeleteSchedule removes the rule for a report. Deleting an absent rule is a
// no-op.
func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, reportID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE report_id = $1`, reportID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule for report %s: %w", reportID, err)
	}

	return nil
}

// ScheduleByReport returns the rule registered for a report.
func (r *ScheduleRepository) ScheduleByReport(ctx context.Context, reportID string) (*models.ScheduleRule, error) {
	query := `
		SELECT report_id, cron_expression, next_due_at, created_at, updated_at
		FROM schedules
		WHERE report_id = $1
	`

	var rule models.ScheduleRule

	err := r.db.QueryRowContext(ctx, query, reportID).Scan(
		&rule.ReportID,
		&rule.CronExpression,
		&rule.NextDueAt,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrScheduleNotFound
		}

		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	return &rule, nil
}

// DueSchedules returns every rule whose next due time is at or before now.
func (r *ScheduleRepository) DueSchedules(ctx context.Context, now time.Time) ([]*models.ScheduleRule, error) {
	query := `
		SELECT report_id, cron_expression, next_due_at, created_at, updated_at
		FROM schedules
		WHERE next_due_at <= $1
		ORDER BY next_due_at
	`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	defer func(ctx context.Context, r *ScheduleRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	rules := make([]*models.ScheduleRule, 0)

	for rows.Next() {
		var rule models.ScheduleRule

		err := rows.Scan(
			&rule.ReportID,
			&rule.CronExpression,
			&rule.NextDueAt,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		rules = append(rules, &rule)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return rules, nil
}
