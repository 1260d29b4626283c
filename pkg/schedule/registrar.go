package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence"
)

// Registrar keeps the materialized schedule rules consistent with report
// definitions. Sync is idempotent in both directions: registering an
// already-registered report replaces its rule, deregistering an unknown
// report is a no-op. That prevents orphan rules when reports are deactivated
// or deleted after a rule was registered.
type Registrar struct {
	schedules persistence.ScheduleRepository
	logger    *slog.Logger
}

// NewRegistrar creates a registrar over the given schedule repository.
func NewRegistrar(schedules persistence.ScheduleRepository, logger *slog.Logger) *Registrar {
	return &Registrar{
		schedules: schedules,
		logger:    logger.With("module", "schedule_registrar"),
	}
}

// Sync registers, replaces or removes the rule for a report so it matches
// the definition's cadence, delivery time and active flag.
func (r *Registrar) Sync(ctx context.Context, report *models.ReportDefinition) error {
	if !report.Active {
		return r.Deregister(ctx, report.ID)
	}

	expr, err := Translate(report.Cadence, report.TimeOfDay)
	if err != nil {
		return fmt.Errorf("failed to translate schedule for report %s: %w", report.ID, err)
	}

	rule, err := models.NewScheduleRule(report.ID, expr)
	if err != nil {
		return fmt.Errorf("failed to build schedule rule for report %s: %w", report.ID, err)
	}

	if err := r.schedules.SaveSchedule(ctx, rule); err != nil {
		return fmt.Errorf("failed to register schedule for report %s: %w", report.ID, err)
	}

	r.logger.InfoContext(ctx, "Registered schedule rule",
		"report_id", report.ID,
		"cron_expression", expr,
		"next_due_at", rule.NextDueAt)

	return nil
}

// Deregister removes the rule for a report.
func (r *Registrar) Deregister(ctx context.Context, reportID string) error {
	if err := r.schedules.DeleteSchedule(ctx, reportID); err != nil {
		return fmt.Errorf("failed to deregister schedule for report %s: %w", reportID, err)
	}

	r.logger.InfoContext(ctx, "Deregistered schedule rule", "report_id", reportID)

	return nil
}
