// Package schedule turns a report's cadence into a cron recurrence rule and
// keeps the materialized rules in sync with report definitions.
package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/briefwell/briefwell/pkg/models"
)

// Translate converts a (cadence, HH:MM) pair into a standard 5-field cron
// expression. It is a pure function: registration side effects belong to the
// Registrar.
//
// Weekly reports fire on Monday, monthly reports on the first of the month.
func Translate(cadence models.Cadence, timeOfDay string) (string, error) {
	if !models.ValidCadence(cadence) {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidCadence, cadence)
	}

	if !models.ValidTimeOfDay(timeOfDay) {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidTimeFormat, timeOfDay)
	}

	parts := strings.SplitN(timeOfDay, ":", 2)
	hour, _ := strconv.Atoi(parts[0])
	minute, _ := strconv.Atoi(parts[1])

	var expr string

	switch cadence {
	case models.CadenceDaily:
		expr = fmt.Sprintf("%d %d * * *", minute, hour)
	case models.CadenceWeekly:
		expr = fmt.Sprintf("%d %d * * 1", minute, hour)
	case models.CadenceMonthly:
		expr = fmt.Sprintf("%d %d 1 * *", minute, hour)
	}

	// The expressions above are well-formed by construction; the parse
	// guards against the format drifting from what the scheduler accepts.
	if _, err := cron.ParseStandard(expr); err != nil {
		return "", fmt.Errorf("generated invalid cron expression %q: %w", expr, err)
	}

	return expr, nil
}
