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

// ExecutionRepository handles execution-record database operations.
//
// The (report_id, period_key) primary key plus ON CONFLICT DO NOTHING gives
// the atomic compare-and-create the single-flight guarantee needs; the
// status predicate on UPDATE gives compare-and-swap for transitions.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	report_id
  , period_key
  , status
  , start_time
  , end_time
  , content
  , error_kind
  , error_message
  , attempt_count
  , delivered
  , delivery_error
  , created_at
  , updated_at
`

// CreateExecution conditionally creates a record; returns ErrExecutionExists
// when a record for the (reportID, periodKey) pair is already present.
func (r *ExecutionRepository) CreateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	query := `
		INSERT INTO executions (
			report_id, period_key, status, start_time, end_time, content,
			error_kind, error_message, attempt_count, delivered, delivery_error,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (report_id, period_key) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		record.ReportID,
		record.PeriodKey,
		record.Status,
		nullTime(record.StartTime),
		record.EndTime,
		nullString(record.Content),
		nullString(string(record.ErrorKind)),
		nullString(record.ErrorMessage),
		record.AttemptCount,
		record.Delivered,
		nullString(record.DeliveryError),
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Create", record.ReportID, record.PeriodKey, persistence.ErrExecutionExists)
	}

	return nil
}

// UpdateExecution persists the record only while the stored status still
// matches expectedStatus; otherwise returns ErrStatusConflict.
func (r *ExecutionRepository) UpdateExecution(ctx context.Context, record *models.ExecutionRecord, expectedStatus models.ExecutionStatus) error {
	query := `
		UPDATE executions SET
			status = $3,
			start_time = $4,
			end_time = $5,
			content = $6,
			error_kind = $7,
			error_message = $8,
			attempt_count = $9,
			delivered = $10,
			delivery_error = $11,
			updated_at = $12
		WHERE report_id = $1 AND period_key = $2 AND status = $13
	`

	result, err := r.db.ExecContext(ctx, query,
		record.ReportID,
		record.PeriodKey,
		record.Status,
		nullTime(record.StartTime),
		record.EndTime,
		nullString(record.Content),
		nullString(string(record.ErrorKind)),
		nullString(record.ErrorMessage),
		record.AttemptCount,
		record.Delivered,
		nullString(record.DeliveryError),
		record.UpdatedAt,
		expectedStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Update", record.ReportID, record.PeriodKey, persistence.ErrStatusConflict)
	}

	return nil
}

// ExecutionByKey returns the record for the identity pair.
func (r *ExecutionRepository) ExecutionByKey(ctx context.Context, reportID, periodKey string) (*models.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE report_id = $1 AND period_key = $2`

	row := r.db.QueryRowContext(ctx, query, reportID, periodKey)

	record, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("Get", reportID, periodKey, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return record, nil
}

// ExecutionsByReport returns records for a report, newest first.
func (r *ExecutionRepository) ExecutionsByReport(ctx context.Context, reportID string, limit int) ([]*models.ExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE report_id = $1 ORDER BY created_at DESC`

	args := []any{reportID}

	if limit > 0 {
		query += ` LIMIT $2`

		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func(ctx context.Context, r *ExecutionRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	records := make([]*models.ExecutionRecord, 0)

	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return records, nil
}

func scanExecution(row rowScanner) (*models.ExecutionRecord, error) {
	var (
		record        models.ExecutionRecord
		startTime     sql.NullTime
		content       sql.NullString
		errorKind     sql.NullString
		errorMessage  sql.NullString
		deliveryError sql.NullString
	)

	err := row.Scan(
		&record.ReportID,
		&record.PeriodKey,
		&record.Status,
		&startTime,
		&record.EndTime,
		&content,
		&errorKind,
		&errorMessage,
		&record.AttemptCount,
		&record.Delivered,
		&deliveryError,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if startTime.Valid {
		record.StartTime = startTime.Time
	}

	record.Content = content.String
	record.ErrorKind = models.ErrorKind(errorKind.String)
	record.ErrorMessage = errorMessage.String
	record.DeliveryError = deliveryError.String

	return &record, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
