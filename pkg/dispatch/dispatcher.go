// Package dispatch turns trigger events into execution attempts. It is the
// seam between at-least-once event delivery and the exactly-once execution
// guarantee the engine's conditional create provides.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/briefwell/briefwell/pkg/engine"
	"github.com/briefwell/briefwell/pkg/events"
	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence"
)

// ExecutionStarter is the engine surface the dispatcher needs.
type ExecutionStarter interface {
	StartExecution(ctx context.Context, report *models.ReportDefinition, periodKey string) (*engine.Result, error)
}

type Dispatcher struct {
	reports persistence.ReportRepository
	starter ExecutionStarter
	logger  *slog.Logger
}

func NewDispatcher(reports persistence.ReportRepository, starter ExecutionStarter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		reports: reports,
		starter: starter,
		logger:  logger.With("module", "dispatch"),
	}
}

// HandleTrigger processes a single trigger event. A trigger for a deleted or
// inactive report is dropped without creating any record; the event was
// valid when emitted, the world just moved on.
func (d *Dispatcher) HandleTrigger(ctx context.Context, event events.ReportTriggered) error {
	logger := d.logger.With("report_id", event.ReportID, "event_id", event.ID)

	report, err := d.reports.ReportByID(ctx, event.ReportID)
	if err != nil {
		if persistence.IsReportNotFound(err) {
			logger.InfoContext(ctx, "Dropping trigger for deleted report")

			return nil
		}

		return fmt.Errorf("failed to load report %s: %w", event.ReportID, err)
	}

	if !report.Active {
		logger.InfoContext(ctx, "Dropping trigger for inactive report")

		return nil
	}

	// The scheduled time, not the time the event was handled, names the
	// period. A trigger redelivered hours late still lands on the same
	// key and is absorbed by the conditional create.
	periodKey := models.PeriodKey(report.Cadence, event.ScheduledFor)

	result, err := d.starter.StartExecution(ctx, report, periodKey)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Trigger dispatched",
		"period_key", periodKey, "result", result.Kind)

	return nil
}
