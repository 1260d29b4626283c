package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence"
)

// ReportRepository stores report definitions as one JSON file per report.
type ReportRepository struct {
	root string
	mu   sync.RWMutex
}

func NewReportRepository(root string) *ReportRepository {
	return &ReportRepository{root: root}
}

func (r *ReportRepository) dir() string {
	return filepath.Join(r.root, "reports")
}

func (r *ReportRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

func (r *ReportRepository) Reports(ctx context.Context) ([]*models.ReportDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ReportDefinition{}, nil
		}

		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}

	reports := make([]*models.ReportDefinition, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var report models.ReportDefinition
		if err := readJSON(filepath.Join(r.dir(), entry.Name()), &report); err != nil {
			return nil, err
		}

		reports = append(reports, &report)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})

	return reports, nil
}

func (r *ReportRepository) ReportByID(ctx context.Context, id string) (*models.ReportDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.readReport(id)
}

func (r *ReportRepository) readReport(id string) (*models.ReportDefinition, error) {
	var report models.ReportDefinition

	if err := readJSON(r.path(id), &report); err != nil {
		if os.IsNotExist(err) {
			return nil, &persistence.ReportError{Op: "Get", ReportID: id, Err: persistence.ErrReportNotFound}
		}

		return nil, err
	}

	return &report, nil
}

func (r *ReportRepository) SaveReport(ctx context.Context, report *models.ReportDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return writeJSON(r.path(report.ID), report)
}

func (r *ReportRepository) SetReportActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	report, err := r.readReport(id)
	if err != nil {
		return err
	}

	report.Active = active
	report.UpdatedAt = time.Now().UTC()

	return writeJSON(r.path(id), report)
}

func (r *ReportRepository) DeleteReport(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete report %s: %w", id, err)
	}

	return nil
}
