package dispatch_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefwell/briefwell/pkg/dispatch"
	"github.com/briefwell/briefwell/pkg/engine"
	"github.com/briefwell/briefwell/pkg/events"
	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence/file"
)

type capturedStart struct {
	reportID  string
	periodKey string
}

type stubStarter struct {
	starts []capturedStart
}

func (s *stubStarter) StartExecution(_ context.Context, report *models.ReportDefinition, periodKey string) (*engine.Result, error) {
	s.starts = append(s.starts, capturedStart{reportID: report.ID, periodKey: periodKey})

	return &engine.Result{Kind: engine.ResultCompleted}, nil
}

func testReport() *models.ReportDefinition {
	return &models.ReportDefinition{
		ID:        "report-1",
		OwnerID:   "owner-1",
		Title:     "Acme Weekly Briefing",
		Topics:    []string{"Acme Corp"},
		Cadence:   models.CadenceWeekly,
		TimeOfDay: "08:00",
		Recipient: "reader@example.com",
		Active:    true,
	}
}

func triggerEvent(reportID string, scheduledFor time.Time) events.ReportTriggered {
	return events.ReportTriggered{
		BaseEvent: events.BaseEvent{
			ID:        "evt-1",
			Type:      events.ReportTriggeredEvent,
			Timestamp: scheduledFor,
			ReportID:  reportID,
		},
		ScheduledFor: scheduledFor,
	}
}

func TestHandleTrigger_DispatchesActiveReport(t *testing.T) {
	reports := file.NewReportRepository(t.TempDir())
	require.NoError(t, reports.SaveReport(t.Context(), testReport()))

	starter := &stubStarter{}
	dispatcher := dispatch.NewDispatcher(reports, starter, slog.Default())

	scheduledFor := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, dispatcher.HandleTrigger(t.Context(), triggerEvent("report-1", scheduledFor)))

	require.Len(t, starter.starts, 1)
	assert.Equal(t, "report-1", starter.starts[0].reportID)
	assert.Equal(t, "2024-W22", starter.starts[0].periodKey)
}

func TestHandleTrigger_PeriodKeyComesFromScheduledTime(t *testing.T) {
	report := testReport()
	report.Cadence = models.CadenceDaily

	reports := file.NewReportRepository(t.TempDir())
	require.NoError(t, reports.SaveReport(t.Context(), report))

	starter := &stubStarter{}
	dispatcher := dispatch.NewDispatcher(reports, starter, slog.Default())

	// An event handled long after its scheduled time still names the
	// original period.
	scheduledFor := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, dispatcher.HandleTrigger(t.Context(), triggerEvent("report-1", scheduledFor)))

	require.Len(t, starter.starts, 1)
	assert.Equal(t, "2024-06-01", starter.starts[0].periodKey)
}

func TestHandleTrigger_DropsDeletedReport(t *testing.T) {
	reports := file.NewReportRepository(t.TempDir())

	starter := &stubStarter{}
	dispatcher := dispatch.NewDispatcher(reports, starter, slog.Default())

	err := dispatcher.HandleTrigger(t.Context(), triggerEvent("ghost", time.Now().UTC()))
	require.NoError(t, err, "deleted report is not an error")
	assert.Empty(t, starter.starts)
}

func TestHandleTrigger_DropsInactiveReport(t *testing.T) {
	report := testReport()
	report.Active = false

	reports := file.NewReportRepository(t.TempDir())
	require.NoError(t, reports.SaveReport(t.Context(), report))

	starter := &stubStarter{}
	dispatcher := dispatch.NewDispatcher(reports, starter, slog.Default())

	require.NoError(t, dispatcher.HandleTrigger(t.Context(), triggerEvent("report-1", time.Now().UTC())))
	assert.Empty(t, starter.starts, "inactive report must not produce an execution record")
}
