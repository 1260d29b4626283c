package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/briefwell/briefwell/pkg/commandqueue"
	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence"
	"github.com/briefwell/briefwell/pkg/schedule"
)

// CommandEnqueuer submits manual commands for a worker to pick up.
type CommandEnqueuer interface {
	Enqueue(ctx context.Context, command commandqueue.Command) error
}

// Report manages report definitions. Every write that touches cadence,
// time of day or the active flag re-syncs the schedule store so the
// scheduler's view never drifts from the definition.
type Report struct {
	persistence persistence.Persistence
	registrar   *schedule.Registrar
	commands    CommandEnqueuer
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewReport(p persistence.Persistence, commands CommandEnqueuer, logger *slog.Logger) *Report {
	return &Report{
		persistence: p,
		registrar:   schedule.NewRegistrar(p.ScheduleRepository(), logger),
		commands:    commands,
		validator:   validator.New(),
		logger:      logger.With("module", "report_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Report) HealthCheck(ctx context.Context) (string, bool) {
	if err := s.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

type CreateReportRequest struct {
	OwnerID   string   `json:"owner_id"    validate:"required"`
	Title     string   `json:"title"       validate:"required,min=3"`
	Topics    []string `json:"topics"      validate:"required,min=1"`
	Keywords  []string `json:"keywords"`
	Cadence   string   `json:"cadence"     validate:"required"`
	TimeOfDay string   `json:"time_of_day" validate:"required"`
	Recipient string   `json:"recipient"   validate:"required,email"`
}

func (s *Report) CreateReport(ctx context.Context, req CreateReportRequest) (*models.ReportDefinition, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, &ServiceError{Op: "create_report", Err: err}
	}

	now := time.Now().UTC()

	report := &models.ReportDefinition{
		ID:        uuid.New().String(),
		OwnerID:   req.OwnerID,
		Title:     req.Title,
		Topics:    models.NormalizeTopics(req.Topics),
		Keywords:  req.Keywords,
		Cadence:   models.Cadence(req.Cadence),
		TimeOfDay: req.TimeOfDay,
		Recipient: req.Recipient,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := report.Validate(); err != nil {
		return nil, &ServiceError{Op: "create_report", Err: err}
	}

	if err := s.persistence.ReportRepository().SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	// An active report without a schedule rule would never fire, so a sync
	// failure rolls the definition back rather than leaving it stranded.
	if err := s.registrar.Sync(ctx, report); err != nil {
		if deleteErr := s.persistence.ReportRepository().DeleteReport(ctx, report.ID); deleteErr != nil {
			s.logger.ErrorContext(ctx, "Failed to roll back report after schedule sync failure",
				"report_id", report.ID, "error", deleteErr)
		}

		return nil, fmt.Errorf("failed to register schedule: %w", err)
	}

	s.logger.InfoContext(ctx, "Report created",
		"report_id", report.ID, "cadence", report.Cadence)

	return report, nil
}

// UpdateReportRequest carries a partial update; nil fields are untouched.
type UpdateReportRequest struct {
	Title     *string   `json:"title,omitempty"`
	Topics    *[]string `json:"topics,omitempty"`
	Keywords  *[]string `json:"keywords,omitempty"`
	Cadence   *string   `json:"cadence,omitempty"`
	TimeOfDay *string   `json:"time_of_day,omitempty"`
	Recipient *string   `json:"recipient,omitempty"`
}

func (s *Report) UpdateReport(ctx context.Context, id string, req UpdateReportRequest) (*models.ReportDefinition, error) {
	report, err := s.persistence.ReportRepository().ReportByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		report.Title = *req.Title
	}

	if req.Topics != nil {
		report.Topics = models.NormalizeTopics(*req.Topics)
	}

	if req.Keywords != nil {
		report.Keywords = *req.Keywords
	}

	if req.Cadence != nil {
		report.Cadence = models.Cadence(*req.Cadence)
	}

	if req.TimeOfDay != nil {
		report.TimeOfDay = *req.TimeOfDay
	}

	if req.Recipient != nil {
		report.Recipient = *req.Recipient
	}

	report.UpdatedAt = time.Now().UTC()

	if err := report.Validate(); err != nil {
		return nil, &ServiceError{Op: "update_report", Err: err}
	}

	if err := s.persistence.ReportRepository().SaveReport(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	// An edited cadence or time takes effect from the next trigger;
	// in-flight executions keep the snapshot they started with.
	if err := s.registrar.Sync(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to sync schedule: %w", err)
	}

	s.logger.InfoContext(ctx, "Report updated", "report_id", report.ID)

	return report, nil
}

func (s *Report) GetReport(ctx context.Context, id string) (*models.ReportDefinition, error) {
	return s.persistence.ReportRepository().ReportByID(ctx, id)
}

func (s *Report) ListReports(ctx context.Context, ownerID string) ([]*models.ReportDefinition, error) {
	reports, err := s.persistence.ReportRepository().Reports(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	if ownerID == "" {
		return reports, nil
	}

	filtered := make([]*models.ReportDefinition, 0, len(reports))

	for _, report := range reports {
		if report.OwnerID == ownerID {
			filtered = append(filtered, report)
		}
	}

	return filtered, nil
}

// SetActive flips the active flag and syncs the schedule store:
// activating registers a rule, deactivating removes it.
func (s *Report) SetActive(ctx context.Context, id string, active bool) (*models.ReportDefinition, error) {
	report, err := s.persistence.ReportRepository().ReportByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if report.Active == active {
		return report, nil
	}

	report.Active = active
	report.UpdatedAt = time.Now().UTC()

	if err := s.persistence.ReportRepository().SetReportActive(ctx, id, active); err != nil {
		return nil, fmt.Errorf("failed to update active flag: %w", err)
	}

	if err := s.registrar.Sync(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to sync schedule: %w", err)
	}

	s.logger.InfoContext(ctx, "Report active flag changed",
		"report_id", id, "active", active)

	return report, nil
}

func (s *Report) DeleteReport(ctx context.Context, id string) error {
	if err := s.registrar.Deregister(ctx, id); err != nil {
		return fmt.Errorf("failed to deregister schedule: %w", err)
	}

	if err := s.persistence.ReportRepository().DeleteReport(ctx, id); err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}

	s.logger.InfoContext(ctx, "Report deleted", "report_id", id)

	return nil
}

// Executions returns a report's execution history, newest first.
func (s *Report) Executions(ctx context.Context, reportID string, limit int) ([]*models.ExecutionRecord, error) {
	if _, err := s.persistence.ReportRepository().ReportByID(ctx, reportID); err != nil {
		return nil, err
	}

	return s.persistence.ExecutionRepository().ExecutionsByReport(ctx, reportID, limit)
}

// RunNow enqueues an immediate execution request for an active report.
func (s *Report) RunNow(ctx context.Context, reportID, requestedBy string) error {
	report, err := s.persistence.ReportRepository().ReportByID(ctx, reportID)
	if err != nil {
		return err
	}

	if !report.Active {
		return &ServiceError{Op: "run_now", Err: ErrReportInactive}
	}

	return s.commands.Enqueue(ctx, commandqueue.Command{
		Type:        commandqueue.CommandRunNow,
		ReportID:    reportID,
		RequestedBy: requestedBy,
	})
}

// Resume enqueues a recovery request for an execution a crashed worker left
// in pending or processing. Terminal executions have nothing to recover.
func (s *Report) Resume(ctx context.Context, reportID, periodKey, requestedBy string) error {
	record, err := s.persistence.ExecutionRepository().ExecutionByKey(ctx, reportID, periodKey)
	if err != nil {
		return err
	}

	if record.Status == models.ExecutionStatusCompleted || record.Status == models.ExecutionStatusFailed {
		return &ServiceError{Op: "resume", Err: ErrExecutionNotResumable}
	}

	return s.commands.Enqueue(ctx, commandqueue.Command{
		Type:        commandqueue.CommandResume,
		ReportID:    reportID,
		PeriodKey:   periodKey,
		RequestedBy: requestedBy,
	})
}

// Resend enqueues a re-delivery of a completed execution's stored content.
func (s *Report) Resend(ctx context.Context, reportID, periodKey, requestedBy string) error {
	record, err := s.persistence.ExecutionRepository().ExecutionByKey(ctx, reportID, periodKey)
	if err != nil {
		return err
	}

	if record.Status != models.ExecutionStatusCompleted {
		return &ServiceError{Op: "resend", Err: ErrExecutionNotResendable}
	}

	return s.commands.Enqueue(ctx, commandqueue.Command{
		Type:        commandqueue.CommandResend,
		ReportID:    reportID,
		PeriodKey:   periodKey,
		RequestedBy: requestedBy,
	})
}
