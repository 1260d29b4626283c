package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence"
)

// ReportRepository handles report-definition database operations.
type ReportRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *sql.DB, logger *slog.Logger) *ReportRepository {
	return &ReportRepository{db: db, logger: logger}
}

const reportColumns = `
	id
  , owner_id
  , title
  , topics
  , keywords
  , cadence
  , time_of_day
  , recipient
  , active
  , created_at
  , updated_at
`

// Reports returns all report definitions, newest first.
func (r *ReportRepository) Reports(ctx context.Context) ([]*models.ReportDefinition, error) {
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}

	defer func(ctx context.Context, r *ReportRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	reports := make([]*models.ReportDefinition, 0)

	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}

		reports = append(reports, report)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}

	return reports, nil
}

// ReportByID returns a report definition by its ID.
func (r *ReportRepository) ReportByID(ctx context.Context, id string) (*models.ReportDefinition, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &persistence.ReportError{Op: "Get", ReportID: id, Err: persistence.ErrReportNotFound}
		}

		return nil, fmt.Errorf("failed to scan report: %w", err)
	}

	return report, nil
}

// SaveReport upserts a report definition.
func (r *ReportRepository) SaveReport(ctx context.Context, report *models.ReportDefinition) error {
	now := time.Now().UTC()

	if report.CreatedAt.IsZero() {
		report.CreatedAt = now
	}

	report.UpdatedAt = now

	topicsJSON, err := json.Marshal(report.Topics)
	if err != nil {
		return fmt.Errorf("failed to marshal topics: %w", err)
	}

	keywordsJSON, err := json.Marshal(report.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	query := `
		INSERT INTO reports (
			id, owner_id, title, topics, keywords, cadence,
			time_of_day, recipient, active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			title = EXCLUDED.title,
			topics = EXCLUDED.topics,
			keywords = EXCLUDED.keywords,
			cadence = EXCLUDED.cadence,
			time_of_day = EXCLUDED.time_of_day,
			recipient = EXCLUDED.recipient,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		report.ID,
		report.OwnerID,
		report.Title,
		topicsJSON,
		keywordsJSON,
		report.Cadence,
		report.TimeOfDay,
		report.Recipient,
		report.Active,
		report.CreatedAt,
		report.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	return nil
}

// SetReportActive flips only the active flag. This is the single field the
// engine is allowed to write on a definition.
func (r *ReportRepository) SetReportActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE reports SET active = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update report active flag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return &persistence.ReportError{Op: "SetActive", ReportID: id, Err: persistence.ErrReportNotFound}
	}

	return nil
}

// DeleteReport removes a report definition. Deleting an absent report is not
// an error.
func (r *ReportRepository) DeleteReport(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report %s: %w", id, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*models.ReportDefinition, error) {
	var (
		report       models.ReportDefinition
		topicsJSON   []byte
		keywordsJSON []byte
	)

	err := row.Scan(
		&report.ID,
		&report.OwnerID,
		&report.Title,
		&topicsJSON,
		&keywordsJSON,
		&report.Cadence,
		&report.TimeOfDay,
		&report.Recipient,
		&report.Active,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(topicsJSON, &report.Topics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal topics: %w", err)
	}

	if len(keywordsJSON) > 0 {
		if err := json.Unmarshal(keywordsJSON, &report.Keywords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
		}
	}

	return &report, nil
}
