package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefwell/briefwell/pkg/eventbus"
	"github.com/briefwell/briefwell/pkg/events"
	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence/file"
	"github.com/briefwell/briefwell/pkg/scheduler"
)

type stubEventBus struct {
	published []eventbus.Event
	err       error
}

func (b *stubEventBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	if b.err != nil {
		return b.err
	}

	b.published = append(b.published, event)

	return nil
}

func (b *stubEventBus) Handle(_ events.EventType, _ eventbus.EventHandler) error { return nil }
func (b *stubEventBus) Subscribe(_ context.Context) error                        { return nil }
func (b *stubEventBus) Close() error                                             { return nil }
func (b *stubEventBus) GenerateID() string                                       { return uuid.New().String() }

func saveRule(t *testing.T, repo *file.ScheduleRepository, reportID, expression string) *models.ScheduleRule {
	t.Helper()

	rule, err := models.NewScheduleRule(reportID, expression)
	require.NoError(t, err)
	require.NoError(t, repo.SaveSchedule(t.Context(), rule))

	return rule
}

func TestProcessDue_PublishesAndAdvances(t *testing.T) {
	schedules := file.NewScheduleRepository(t.TempDir())
	bus := &stubEventBus{}

	rule := saveRule(t, schedules, "report-1", "0 8 * * *")
	originalDue := rule.NextDueAt

	s := scheduler.NewScheduler(schedules, bus, time.Minute, slog.Default())

	s.ProcessDue(t.Context(), originalDue.Add(time.Second))

	require.Len(t, bus.published, 1)

	trigger, ok := bus.published[0].(events.ReportTriggered)
	require.True(t, ok)
	assert.Equal(t, "report-1", trigger.ReportID)
	assert.True(t, trigger.ScheduledFor.Equal(originalDue),
		"the trigger carries the scheduled time, not the poll time")

	stored, err := schedules.ScheduleByReport(t.Context(), "report-1")
	require.NoError(t, err)
	assert.True(t, stored.NextDueAt.After(originalDue), "rule advances after firing")
}

func TestProcessDue_SkipsRulesNotYetDue(t *testing.T) {
	schedules := file.NewScheduleRepository(t.TempDir())
	bus := &stubEventBus{}

	rule := saveRule(t, schedules, "report-1", "0 8 * * *")

	s := scheduler.NewScheduler(schedules, bus, time.Minute, slog.Default())

	s.ProcessDue(t.Context(), rule.NextDueAt.Add(-time.Hour))

	assert.Empty(t, bus.published)
}

func TestProcessDue_PublishFailureLeavesRuleDue(t *testing.T) {
	schedules := file.NewScheduleRepository(t.TempDir())
	bus := &stubEventBus{err: errors.New("broker unavailable")}

	rule := saveRule(t, schedules, "report-1", "0 8 * * *")
	originalDue := rule.NextDueAt

	s := scheduler.NewScheduler(schedules, bus, time.Minute, slog.Default())

	s.ProcessDue(t.Context(), originalDue.Add(time.Second))

	stored, err := schedules.ScheduleByReport(t.Context(), "report-1")
	require.NoError(t, err)
	assert.True(t, stored.NextDueAt.Equal(originalDue),
		"a failed publish must be retried on the next tick")
}

func TestProcessDue_MixedExpressions(t *testing.T) {
	schedules := file.NewScheduleRepository(t.TempDir())
	bus := &stubEventBus{}

	daily := saveRule(t, schedules, "report-daily", "0 8 * * *")
	weekly := saveRule(t, schedules, "report-weekly", "30 6 * * 1")

	s := scheduler.NewScheduler(schedules, bus, time.Minute, slog.Default())

	// A poll time past both due times fires both, whatever their
	// expressions are.
	latest := daily.NextDueAt
	if weekly.NextDueAt.After(latest) {
		latest = weekly.NextDueAt
	}

	s.ProcessDue(t.Context(), latest.Add(time.Second))

	assert.Len(t, bus.published, 2)
}

func TestStartStop(t *testing.T) {
	schedules := file.NewScheduleRepository(t.TempDir())
	bus := &stubEventBus{}

	s := scheduler.NewScheduler(schedules, bus, time.Hour, slog.Default())

	require.NoError(t, s.Start(t.Context()))
	require.NoError(t, s.Start(t.Context()), "double start is a no-op")
	require.NoError(t, s.Stop(t.Context()))
	require.NoError(t, s.Stop(t.Context()), "double stop is a no-op")
}
