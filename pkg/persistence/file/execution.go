package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence"
)

// ExecutionRepository stores execution records under
// executions/<reportID>/<periodKey>.json.
//
// The conditional create uses O_CREATE|O_EXCL, so exactly one of any number
// of concurrent creators for the same key wins, even across processes.
type ExecutionRepository struct {
	root string
	mu   sync.Mutex
}

func NewExecutionRepository(root string) *ExecutionRepository {
	return &ExecutionRepository{root: root}
}

func (r *ExecutionRepository) dir(reportID string) string {
	return filepath.Join(r.root, "executions", reportID)
}

func (r *ExecutionRepository) path(reportID, periodKey string) string {
	return filepath.Join(r.dir(reportID), periodKey+".json")
}

func (r *ExecutionRepository) CreateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	if err := os.MkdirAll(r.dir(record.ReportID), 0o755); err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	file, err := os.OpenFile(r.path(record.ReportID, record.PeriodKey), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return persistence.NewExecutionError("Create", record.ReportID, record.PeriodKey, persistence.ErrExecutionExists)
		}

		return fmt.Errorf("failed to create execution file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		_ = file.Close()

		return fmt.Errorf("failed to write execution file: %w", err)
	}

	return file.Close()
}

func (r *ExecutionRepository) UpdateExecution(ctx context.Context, record *models.ExecutionRecord, expectedStatus models.ExecutionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.readExecution(record.ReportID, record.PeriodKey)
	if err != nil {
		return err
	}

	if current.Status != expectedStatus {
		return persistence.NewExecutionError("Update", record.ReportID, record.PeriodKey, persistence.ErrStatusConflict)
	}

	return writeJSON(r.path(record.ReportID, record.PeriodKey), record)
}

func (r *ExecutionRepository) ExecutionByKey(ctx context.Context, reportID, periodKey string) (*models.ExecutionRecord, error) {
	return r.readExecution(reportID, periodKey)
}

func (r *ExecutionRepository) readExecution(reportID, periodKey string) (*models.ExecutionRecord, error) {
	var record models.ExecutionRecord

	if err := readJSON(r.path(reportID, periodKey), &record); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("Get", reportID, periodKey, persistence.ErrExecutionNotFound)
		}

		return nil, err
	}

	return &record, nil
}

func (r *ExecutionRepository) ExecutionsByReport(ctx context.Context, reportID string, limit int) ([]*models.ExecutionRecord, error) {
	entries, err := os.ReadDir(r.dir(reportID))
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ExecutionRecord{}, nil
		}

		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	records := make([]*models.ExecutionRecord, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var record models.ExecutionRecord
		if err := readJSON(filepath.Join(r.dir(reportID), entry.Name()), &record); err != nil {
			return nil, err
		}

		records = append(records, &record)
	}

	// Newest first, by the moment the execution was created.
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}
