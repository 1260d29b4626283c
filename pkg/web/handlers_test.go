package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefwell/briefwell/pkg/commandqueue"
	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence/file"
	"github.com/briefwell/briefwell/pkg/services"
	"github.com/briefwell/briefwell/pkg/web"
)

type stubEnqueuer struct {
	commands []commandqueue.Command
}

func (s *stubEnqueuer) Enqueue(_ context.Context, command commandqueue.Command) error {
	s.commands = append(s.commands, command)

	return nil
}

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence, *stubEnqueuer) {
	t.Helper()

	persistence := file.NewPersistence(t.TempDir())
	enqueuer := &stubEnqueuer{}
	reportService := services.NewReport(persistence, enqueuer, slog.Default())

	app := fiber.New()
	web.NewAPIHandlers(reportService).RegisterRoutes(app)

	return app, persistence, enqueuer
}

func createTestReport(t *testing.T, app *fiber.App) *models.ReportDefinition {
	t.Helper()

	body, err := json.Marshal(services.CreateReportRequest{
		OwnerID:   "owner-1",
		Title:     "Acme Daily Briefing",
		Topics:    []string{"Acme Corp"},
		Cadence:   "daily",
		TimeOfDay: "08:00",
		Recipient: "reader@example.com",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/reports/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var report models.ReportDefinition
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))

	return &report
}

func TestCreateReport(t *testing.T) {
	app, _, _ := setupTestApp(t)

	report := createTestReport(t, app)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "Acme Daily Briefing", report.Title)
	assert.True(t, report.Active)
}

func TestCreateReport_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "not-json"},
		{"missing recipient", `{"owner_id":"o","title":"A Report","topics":["x"],"cadence":"daily","time_of_day":"08:00"}`},
		{"bad cadence", `{"owner_id":"o","title":"A Report","topics":["x"],"cadence":"hourly","time_of_day":"08:00","recipient":"r@example.com"}`},
		{"bad time", `{"owner_id":"o","title":"A Report","topics":["x"],"cadence":"daily","time_of_day":"8am","recipient":"r@example.com"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, _ := setupTestApp(t)

			req := httptest.NewRequest(http.MethodPost, "/reports/", bytes.NewReader([]byte(tt.body)))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetReport(t *testing.T) {
	app, _, _ := setupTestApp(t)
	report := createTestReport(t, app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/reports/"+report.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/reports/ghost", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateReport(t *testing.T) {
	app, persistence, _ := setupTestApp(t)
	report := createTestReport(t, app)

	body := []byte(`{"cadence":"monthly","time_of_day":"09:15"}`)
	req := httptest.NewRequest(http.MethodPatch, "/reports/"+report.ID, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rule, err := persistence.ScheduleRepository().ScheduleByReport(t.Context(), report.ID)
	require.NoError(t, err)
	assert.Equal(t, "15 9 1 * *", rule.CronExpression)
}

func TestDeleteReport(t *testing.T) {
	app, _, _ := setupTestApp(t)
	report := createTestReport(t, app)

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/reports/"+report.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/reports/"+report.ID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActivateDeactivate(t *testing.T) {
	app, persistence, _ := setupTestApp(t)
	report := createTestReport(t, app)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/reports/"+report.ID+"/deactivate", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := persistence.ReportRepository().ReportByID(t.Context(), report.ID)
	require.NoError(t, err)
	assert.False(t, stored.Active)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/reports/"+report.ID+"/activate", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err = persistence.ReportRepository().ReportByID(t.Context(), report.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active)
}

func TestRunReport(t *testing.T) {
	app, _, enqueuer := setupTestApp(t)
	report := createTestReport(t, app)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/reports/"+report.ID+"/run", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Len(t, enqueuer.commands, 1)
	assert.Equal(t, commandqueue.CommandRunNow, enqueuer.commands[0].Type)
}

func TestRunReport_InactiveConflict(t *testing.T) {
	app, _, _ := setupTestApp(t)
	report := createTestReport(t, app)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/reports/"+report.ID+"/deactivate", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/reports/"+report.ID+"/run", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetExecutions(t *testing.T) {
	app, persistence, _ := setupTestApp(t)
	report := createTestReport(t, app)

	now := time.Now().UTC()

	record := models.NewExecutionRecord(report.ID, "2024-06-01", now)
	require.NoError(t, persistence.ExecutionRepository().CreateExecution(t.Context(), record))
	require.NoError(t, record.MarkProcessing(now))
	require.NoError(t, persistence.ExecutionRepository().UpdateExecution(t.Context(), record, models.ExecutionStatusPending))
	require.NoError(t, record.MarkCompleted("content", now))
	require.NoError(t, persistence.ExecutionRepository().UpdateExecution(t.Context(), record, models.ExecutionStatusProcessing))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/reports/"+report.ID+"/executions", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var result struct {
		Executions []web.ExecutionResponse `json:"executions"`
		TotalCount int                     `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &result))

	require.Equal(t, 1, result.TotalCount)
	assert.Equal(t, "2024-06-01", result.Executions[0].PeriodKey)
	assert.Equal(t, string(models.ExecutionStatusCompleted), result.Executions[0].Status)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/reports/"+report.ID+"/executions?limit=bogus", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestResendExecution(t *testing.T) {
	app, persistence, enqueuer := setupTestApp(t)
	report := createTestReport(t, app)

	now := time.Now().UTC()

	record := models.NewExecutionRecord(report.ID, "2024-06-01", now)
	require.NoError(t, persistence.ExecutionRepository().CreateExecution(t.Context(), record))

	// pending execution cannot be resent
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/reports/"+report.ID+"/executions/2024-06-01/resend", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.NoError(t, record.MarkProcessing(now))
	require.NoError(t, persistence.ExecutionRepository().UpdateExecution(t.Context(), record, models.ExecutionStatusPending))
	require.NoError(t, record.MarkCompleted("content", now))
	require.NoError(t, persistence.ExecutionRepository().UpdateExecution(t.Context(), record, models.ExecutionStatusProcessing))

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/reports/"+report.ID+"/executions/2024-06-01/resend", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Len(t, enqueuer.commands, 1)
	assert.Equal(t, commandqueue.CommandResend, enqueuer.commands[0].Type)
	assert.Equal(t, "2024-06-01", enqueuer.commands[0].PeriodKey)
}

func TestResumeExecution(t *testing.T) {
	app, persistence, enqueuer := setupTestApp(t)
	report := createTestReport(t, app)

	now := time.Now().UTC()

	record := models.NewExecutionRecord(report.ID, "2024-06-01", now)
	require.NoError(t, persistence.ExecutionRepository().CreateExecution(t.Context(), record))
	require.NoError(t, record.MarkProcessing(now))
	require.NoError(t, persistence.ExecutionRepository().UpdateExecution(t.Context(), record, models.ExecutionStatusPending))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/reports/"+report.ID+"/executions/2024-06-01/resume", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Len(t, enqueuer.commands, 1)
	assert.Equal(t, commandqueue.CommandResume, enqueuer.commands[0].Type)
	assert.Equal(t, "2024-06-01", enqueuer.commands[0].PeriodKey)

	require.NoError(t, record.MarkCompleted("content", now))
	require.NoError(t, persistence.ExecutionRepository().UpdateExecution(t.Context(), record, models.ExecutionStatusProcessing))

	// nothing to recover once the execution is terminal
	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/reports/"+report.ID+"/executions/2024-06-01/resume", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHealthCheck(t *testing.T) {
	app, _, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
