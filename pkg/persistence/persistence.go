// Package persistence provides the storage abstraction for report
// definitions, execution records and schedule rules.
package persistence

import (
	"context"
	"time"

	"github.com/briefwell/briefwell/pkg/models"
)

// ReportRepository stores report definitions. The engine only ever writes
// the Active flag; everything else is written by the management side.
type ReportRepository interface {
	Reports(ctx context.Context) ([]*models.ReportDefinition, error)
	ReportByID(ctx context.Context, id string) (*models.ReportDefinition, error)
	SaveReport(ctx context.Context, report *models.ReportDefinition) error
	SetReportActive(ctx context.Context, id string, active bool) error
	DeleteReport(ctx context.Context, id string) error
}

// ExecutionRepository stores execution records keyed by (reportID, periodKey).
//
// CreateExecution is a conditional put: it must create the record only if no
// record exists for the key pair, atomically, and return ErrExecutionExists
// otherwise. This is the mechanism that serializes concurrent triggers for
// the same period; implementations must not use a read-then-write pair.
//
// UpdateExecution is a conditional update: it persists the record only if
// the stored status still equals expectedStatus, and returns
// ErrStatusConflict otherwise, so stale readers cannot clobber a transition.
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, record *models.ExecutionRecord) error
	UpdateExecution(ctx context.Context, record *models.ExecutionRecord, expectedStatus models.ExecutionStatus) error
	ExecutionByKey(ctx context.Context, reportID, periodKey string) (*models.ExecutionRecord, error)
	// ExecutionsByReport returns records for a report ordered newest first.
	// A limit of 0 means no limit.
	ExecutionsByReport(ctx context.Context, reportID string, limit int) ([]*models.ExecutionRecord, error)
}

// ScheduleRepository stores materialized schedule rules, one per report.
// SaveSchedule is an upsert (registering twice replaces); DeleteSchedule of
// an absent rule is a no-op, not an error.
type ScheduleRepository interface {
	SaveSchedule(ctx context.Context, rule *models.ScheduleRule) error
	DeleteSchedule(ctx context.Context, reportID string) error
	ScheduleByReport(ctx context.Context, reportID string) (*models.ScheduleRule, error)
	DueSchedules(ctx context.Context, now time.Time) ([]*models.ScheduleRule, error)
}

type Persistence interface {
	ReportRepository() ReportRepository
	ExecutionRepository() ExecutionRepository
	ScheduleRepository() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
