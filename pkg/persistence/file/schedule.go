package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/persistence"
)

// ScheduleRepository stores schedule rules as one JSON file per report.
// SaveSchedule overwrites any previous rule for the report, which gives the
// register-twice-replaces semantics for free.
type ScheduleRepository struct {
	root string
	mu   sync.RWMutex
}

func NewScheduleRepository(root string) *ScheduleRepository {
	return &ScheduleRepository{root: root}
}

func (r *ScheduleRepository) dir() string {
	return filepath.Join(r.root, "schedules")
}

func (r *ScheduleRepository) path(reportID string) string {
	return filepath.Join(r.dir(), reportID+".json")
}

func (r *ScheduleRepository) SaveSchedule(ctx context.Context, rule *models.ScheduleRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return writeJSON(r.path(rule.ReportID), rule)
}

func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, reportID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(reportID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete schedule for report %s: %w", reportID, err)
	}

	return nil
}

func (r *ScheduleRepository) ScheduleByReport(ctx context.Context, reportID string) (*models.ScheduleRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rule models.ScheduleRule

	if err := readJSON(r.path(reportID), &rule); err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrScheduleNotFound
		}

		return nil, err
	}

	return &rule, nil
}

func (r *ScheduleRepository) DueSchedules(ctx context.Context, now time.Time) ([]*models.ScheduleRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ScheduleRule{}, nil
		}

		return nil, fmt.Errorf("failed to read schedules directory: %w", err)
	}

	due := make([]*models.ScheduleRule, 0)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		var rule models.ScheduleRule
		if err := readJSON(filepath.Join(r.dir(), entry.Name()), &rule); err != nil {
			return nil, err
		}

		if rule.IsDue(now) {
			due = append(due, &rule)
		}
	}

	return due, nil
}
