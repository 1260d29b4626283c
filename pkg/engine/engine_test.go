package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefwell/briefwell/pkg/delivery"
	"github.com/briefwell/briefwell/pkg/engine"
	"github.com/briefwell/briefwell/pkg/eventbus"
	"github.com/briefwell/briefwell/pkg/events"
	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence"
	"github.com/briefwell/briefwell/pkg/persistence/file"
	"github.com/briefwell/briefwell/pkg/research"
)

type scriptedResearcher struct {
	mu      sync.Mutex
	results []scriptedResult
	calls   int
}

type scriptedResult struct {
	content string
	err     error
}

func (s *scriptedResearcher) Research(_ context.Context, _ research.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.calls
	s.calls++

	if index >= len(s.results) {
		index = len(s.results) - 1
	}

	result := s.results[index]

	return result.content, result.err
}

func (s *scriptedResearcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

type recordingDeliverer struct {
	mu       sync.Mutex
	err      error
	messages []delivery.Message
}

func (d *recordingDeliverer) Deliver(_ context.Context, message delivery.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.messages = append(d.messages, message)

	return d.err
}

func (d *recordingDeliverer) sent() []delivery.Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]delivery.Message(nil), d.messages...)
}

type capturingEventBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *capturingEventBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	return nil
}

func (b *capturingEventBus) Handle(_ events.EventType, _ eventbus.EventHandler) error { return nil }
func (b *capturingEventBus) Subscribe(_ context.Context) error                        { return nil }
func (b *capturingEventBus) Close() error                                             { return nil }
func (b *capturingEventBus) GenerateID() string                                       { return uuid.New().String() }

func (b *capturingEventBus) published() []eventbus.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]eventbus.Event(nil), b.events...)
}

func (b *capturingEventBus) typesPublished() []events.EventType {
	var types []events.EventType
	for _, event := range b.published() {
		types = append(types, event.GetType())
	}

	return types
}

func testConfig() engine.Config {
	return engine.Config{
		MaxAttempts:     3,
		RetryBackoff:    time.Millisecond,
		DeactivateAfter: 3,
	}
}

func testReport() *models.ReportDefinition {
	return &models.ReportDefinition{
		ID:        "report-1",
		OwnerID:   "owner-1",
		Title:     "Acme Daily Briefing",
		Topics:    []string{"Acme Corp"},
		Cadence:   models.CadenceDaily,
		TimeOfDay: "08:00",
		Recipient: "reader@example.com",
		Active:    true,
	}
}

type fixture struct {
	engine      *engine.Engine
	persistence *file.Persistence
	researcher  *scriptedResearcher
	deliverer   *recordingDeliverer
	bus         *capturingEventBus
}

func newFixture(t *testing.T, results ...scriptedResult) *fixture {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	researcher := &scriptedResearcher{results: results}
	deliverer := &recordingDeliverer{}
	bus := &capturingEventBus{}

	e := engine.NewEngine(p, researcher, deliverer, bus, testConfig(), "worker-test", slog.Default())

	return &fixture{
		engine:      e,
		persistence: p,
		researcher:  researcher,
		deliverer:   deliverer,
		bus:         bus,
	}
}

func TestStartExecution_Success(t *testing.T) {
	f := newFixture(t, scriptedResult{content: "today's report"})

	result, err := f.engine.StartExecution(t.Context(), testReport(), "2024-06-01")
	require.NoError(t, err)

	assert.Equal(t, engine.ResultCompleted, result.Kind)
	assert.Equal(t, models.ExecutionStatusCompleted, result.Record.Status)
	assert.Equal(t, "today's report", result.Record.Content)
	assert.Equal(t, 1, result.Record.AttemptCount)
	assert.True(t, result.Record.Delivered)
	require.NotNil(t, result.Record.EndTime)

	stored, err := f.persistence.ExecutionRepository().ExecutionByKey(t.Context(), "report-1", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)

	messages := f.deliverer.sent()
	require.Len(t, messages, 1)
	assert.Equal(t, "reader@example.com", messages[0].Recipient)
	assert.Contains(t, messages[0].Subject, "2024-06-01")

	assert.Equal(t, []events.EventType{events.ExecutionCompletedEvent}, f.bus.typesPublished())
}

func TestStartExecution_DuplicateTriggerSkipped(t *testing.T) {
	f := newFixture(t, scriptedResult{content: "report"})

	first, err := f.engine.StartExecution(t.Context(), testReport(), "2024-06-01")
	require.NoError(t, err)
	require.Equal(t, engine.ResultCompleted, first.Kind)

	second, err := f.engine.StartExecution(t.Context(), testReport(), "2024-06-01")
	require.NoError(t, err)

	assert.Equal(t, engine.ResultAlreadyExists, second.Kind)
	require.NotNil(t, second.Record)
	assert.Equal(t, models.ExecutionStatusCompleted, second.Record.Status)

	assert.Equal(t, 1, f.researcher.callCount(), "duplicate trigger must not run research")
	assert.Len(t, f.deliverer.sent(), 1, "duplicate trigger must not re-deliver")
}

type lossyReadPersistence struct {
	persistence.Persistence
}

type lossyReadExecutionRepository struct {
	persistence.ExecutionRepository
}

func (p *lossyReadPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return &lossyReadExecutionRepository{ExecutionRepository: p.Persistence.ExecutionRepository()}
}

func (r *lossyReadExecutionRepository) ExecutionByKey(_ context.Context, _, _ string) (*models.ExecutionRecord, error) {
	return nil, errors.New("storage read failed")
}

func TestStartExecution_DuplicateWithFailingLookup(t *testing.T) {
	f := newFixture(t, scriptedResult{content: "report"})

	record := models.NewExecutionRecord("report-1", "2024-06-01", time.Now().UTC())
	require.NoError(t, f.persistence.ExecutionRepository().CreateExecution(t.Context(), record))

	e := engine.NewEngine(
		&lossyReadPersistence{Persistence: f.persistence},
		f.researcher, f.deliverer, f.bus, testConfig(), "worker-test", slog.Default(),
	)

	result, err := e.StartExecution(t.Context(), testReport(), "2024-06-01")
	require.NoError(t, err, "a failed read-back must not surface as an execution error")

	assert.Equal(t, engine.ResultAlreadyExists, result.Kind)
	assert.Nil(t, result.Record, "the winning record is unknown when the lookup fails")
	assert.Zero(t, f.researcher.callCount())
}

func TestStartExecution_ConcurrentTriggersSingleWinner(t *testing.T) {
	f := newFixture(t, scriptedResult{content: "report"})

	const triggers = 16

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
		skipped   int
	)

	for range triggers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			result, err := f.engine.StartExecution(t.Context(), testReport(), "2024-06-01")
			if err != nil {
				return
			}

			mu.Lock()
			defer mu.Unlock()

			switch result.Kind {
			case engine.ResultCompleted:
				completed++
			case engine.ResultAlreadyExists:
				skipped++
			case engine.ResultFailed:
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, completed, "exactly one trigger may execute")
	assert.Equal(t, triggers-1, skipped)
	assert.Equal(t, 1, f.researcher.callCount())
}

func TestStartExecution_TransientErrorRetriedWithinBudget(t *testing.T) {
	f := newFixture(t,
		scriptedResult{err: research.NewTransientError(errors.New("rate limited"))},
		scriptedResult{err: research.NewTransientError(errors.New("rate limited"))},
		scriptedResult{content: "third time lucky"},
	)

	result, err := f.engine.StartExecution(t.Context(), testReport(), "2024-06-01")
	require.NoError(t, err)

	assert.Equal(t, engine.ResultCompleted, result.Kind)
	assert.Equal(t, 3, result.Record.AttemptCount)
	assert.Equal(t, 3, f.researcher.callCount())
}

func TestStartExecution_TransientBudgetExhausted(t *testing.T) {
	f := newFixture(t, scriptedResult{err: research.NewTransientError(errors.New("upstream outage"))})

	result, err := f.engine.StartExecution(t.Context(), testReport(), "2024-06-01")
	require.NoError(t, err)

	assert.Equal(t, engine.ResultFailed, result.Kind)
	assert.Equal(t, models.ExecutionStatusFailed, result.Record.Status)
	assert.Equal(t, models.ErrorKindTransient, result.Record.ErrorKind)
	assert.Equal(t, 3, result.Record.AttemptCount)
	assert.Equal(t, 3, f.researcher.callCount(), "budget is exactly three attempts")
	assert.False(t, result.Record.Delivered)
	assert.Empty(t, f.deliverer.sent(), "failed executions are never delivered")

	assert.Contains(t, f.bus.typesPublished(), events.ExecutionFailedEvent)
}

func TestStartExecution_PermanentErrorFailsImmediately(t *testing.T) {
	f := newFixture(t, scriptedResult{err: research.NewPermanentError(errors.New("topic policy rejection"))})

	result, err := f.engine.StartExecution(t.Context(), testReport(), "2024-06-01")
	require.NoError(t, err)

	assert.Equal(t, engine.ResultFailed, result.Kind)
	assert.Equal(t, models.ErrorKindPermanent, result.Record.ErrorKind)
	assert.Equal(t, 1, result.Record.AttemptCount)
	assert.Equal(t, 1, f.researcher.callCount(), "permanent errors are not retried")
}

func TestStartExecution_DeliveryFailureDoesNotFailExecution(t *testing.T) {
	f := newFixture(t, scriptedResult{content: "report"})
	f.deliverer.err = errors.New("smtp connection refused")

	result, err := f.engine.StartExecution(t.Context(), testReport(), "2024-06-01")
	require.NoError(t, err)

	assert.Equal(t, engine.ResultCompleted, result.Kind)
	assert.Equal(t, models.ExecutionStatusCompleted, result.Record.Status)
	assert.False(t, result.Record.Delivered)
	assert.Contains(t, result.Record.DeliveryError, "smtp connection refused")

	stored, err := f.persistence.ExecutionRepository().ExecutionByKey(t.Context(), "report-1", "2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.False(t, stored.Delivered)

	types := f.bus.typesPublished()
	assert.Contains(t, types, events.DeliveryFailedEvent)
	assert.Contains(t, types, events.ExecutionCompletedEvent)
}

func TestStartExecution_ConsecutiveFailuresDeactivateReport(t *testing.T) {
	f := newFixture(t, scriptedResult{err: research.NewPermanentError(errors.New("bad topics"))})

	report := testReport()
	require.NoError(t, f.persistence.ReportRepository().SaveReport(t.Context(), report))

	rule, err := models.NewScheduleRule(report.ID, "0 8 * * *")
	require.NoError(t, err)
	require.NoError(t, f.persistence.ScheduleRepository().SaveSchedule(t.Context(), rule))

	for _, periodKey := range []string{"2024-06-01", "2024-06-02", "2024-06-03"} {
		result, err := f.engine.StartExecution(t.Context(), report, periodKey)
		require.NoError(t, err)
		require.Equal(t, engine.ResultFailed, result.Kind)
	}

	stored, err := f.persistence.ReportRepository().ReportByID(t.Context(), report.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active, "report must be turned off after three consecutive failures")

	_, err = f.persistence.ScheduleRepository().ScheduleByReport(t.Context(), report.ID)
	assert.Error(t, err, "schedule of a deactivated report is removed")

	assert.Contains(t, f.bus.typesPublished(), events.ReportDeactivatedEvent)
}

func TestStartExecution_SuccessResetsFailureStreak(t *testing.T) {
	f := newFixture(t,
		scriptedResult{err: research.NewPermanentError(errors.New("bad topics"))},
		scriptedResult{err: research.NewPermanentError(errors.New("bad topics"))},
		scriptedResult{content: "recovered"},
		scriptedResult{err: research.NewPermanentError(errors.New("bad topics"))},
	)

	report := testReport()
	require.NoError(t, f.persistence.ReportRepository().SaveReport(t.Context(), report))

	periods := []string{"2024-06-01", "2024-06-02", "2024-06-03", "2024-06-04"}
	for _, periodKey := range periods {
		_, err := f.engine.StartExecution(t.Context(), report, periodKey)
		require.NoError(t, err)
	}

	stored, err := f.persistence.ReportRepository().ReportByID(t.Context(), report.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active, "a success in between breaks the failure streak")
}

func TestResumeExecution_TerminalRecordReturnedAsIs(t *testing.T) {
	f := newFixture(t, scriptedResult{content: "report"})

	report := testReport()

	first, err := f.engine.StartExecution(t.Context(), report, "2024-06-01")
	require.NoError(t, err)
	require.Equal(t, engine.ResultCompleted, first.Kind)

	resumed, err := f.engine.ResumeExecution(t.Context(), report, "2024-06-01")
	require.NoError(t, err)

	assert.Equal(t, engine.ResultCompleted, resumed.Kind)
	assert.Equal(t, 1, f.researcher.callCount(), "resume of a terminal record must not re-run research")
}

func TestResumeExecution_PendingRecordRunsToCompletion(t *testing.T) {
	f := newFixture(t, scriptedResult{content: "report"})

	record := models.NewExecutionRecord("report-1", "2024-06-01", time.Now().UTC())
	require.NoError(t, f.persistence.ExecutionRepository().CreateExecution(t.Context(), record))

	result, err := f.engine.ResumeExecution(t.Context(), testReport(), "2024-06-01")
	require.NoError(t, err)

	assert.Equal(t, engine.ResultCompleted, result.Kind)
	assert.Equal(t, models.ExecutionStatusCompleted, result.Record.Status)
}

func TestResumeExecution_ProcessingRecordKeepsAttemptBudget(t *testing.T) {
	f := newFixture(t, scriptedResult{err: research.NewTransientError(errors.New("still down"))})

	record := models.NewExecutionRecord("report-1", "2024-06-01", time.Now().UTC())
	require.NoError(t, f.persistence.ExecutionRepository().CreateExecution(t.Context(), record))
	require.NoError(t, record.MarkProcessing(time.Now().UTC()))
	record.AttemptCount = 2
	require.NoError(t, f.persistence.ExecutionRepository().UpdateExecution(t.Context(), record, models.ExecutionStatusPending))

	result, err := f.engine.ResumeExecution(t.Context(), testReport(), "2024-06-01")
	require.NoError(t, err)

	assert.Equal(t, engine.ResultFailed, result.Kind)
	assert.Equal(t, 3, result.Record.AttemptCount)
	assert.Equal(t, 1, f.researcher.callCount(), "resumed execution gets only the remaining budget")
}

func TestResend_CompletedExecution(t *testing.T) {
	f := newFixture(t, scriptedResult{content: "report"})

	report := testReport()

	_, err := f.engine.StartExecution(t.Context(), report, "2024-06-01")
	require.NoError(t, err)

	require.NoError(t, f.engine.Resend(t.Context(), report, "2024-06-01"))

	messages := f.deliverer.sent()
	require.Len(t, messages, 2)
	assert.Equal(t, messages[0].BodyText, messages[1].BodyText, "resend uses the stored content")
}

func TestResend_RejectsNonCompletedExecution(t *testing.T) {
	f := newFixture(t, scriptedResult{err: research.NewPermanentError(errors.New("bad topics"))})

	report := testReport()

	_, err := f.engine.StartExecution(t.Context(), report, "2024-06-01")
	require.NoError(t, err)

	err = f.engine.Resend(t.Context(), report, "2024-06-01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")

	err = f.engine.Resend(t.Context(), report, "2024-07-01")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestStartExecution_StatusNeverLeavesTerminal(t *testing.T) {
	f := newFixture(t, scriptedResult{content: "report"})

	result, err := f.engine.StartExecution(t.Context(), testReport(), "2024-06-01")
	require.NoError(t, err)
	require.Equal(t, engine.ResultCompleted, result.Kind)

	// A stale writer still holding the pending view must be rejected.
	stale := models.NewExecutionRecord("report-1", "2024-06-01", time.Now().UTC())
	require.NoError(t, stale.MarkProcessing(time.Now().UTC()))

	err = f.persistence.ExecutionRepository().UpdateExecution(t.Context(), stale, models.ExecutionStatusPending)
	assert.True(t, persistence.IsStatusConflict(err))
}
