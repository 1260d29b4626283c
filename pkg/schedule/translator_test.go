package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefwell/briefwell/pkg/models"
)

func TestTranslate_Daily(t *testing.T) {
	expr, err := Translate(models.CadenceDaily, "09:00")
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * *", expr)
}

func TestTranslate_Weekly(t *testing.T) {
	expr, err := Translate(models.CadenceWeekly, "07:30")
	require.NoError(t, err)
	assert.Equal(t, "30 7 * * 1", expr)
}

func TestTranslate_Monthly(t *testing.T) {
	expr, err := Translate(models.CadenceMonthly, "23:59")
	require.NoError(t, err)
	assert.Equal(t, "59 23 1 * *", expr)
}

func TestTranslate_InvalidCadence(t *testing.T) {
	_, err := Translate("hourly", "09:00")
	assert.ErrorIs(t, err, models.ErrInvalidCadence)
}

func TestTranslate_InvalidTimeFormat(t *testing.T) {
	for _, timeOfDay := range []string{"25:00", "09:99", "9am", ""} {
		_, err := Translate(models.CadenceDaily, timeOfDay)
		assert.ErrorIs(t, err, models.ErrInvalidTimeFormat, "time of day %q", timeOfDay)
	}
}
