package ratelimit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codenerd/orchestrator-core/internal/events"
)

func openTestTracker(t *testing.T, limits Limits) *Tracker {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ratelimit.json")
	tr, err := Open(path, limits, events.NewBus())
	require.NoError(t, err)
	return tr
}

func TestRecordMessageAdvancesAllWindows(t *testing.T) {
	tr := openTestTracker(t, DefaultLimits())
	tr.RecordMessage()
	tr.RecordMessage()

	five := tr.FiveHourWindow()
	require.Equal(t, 2, five.Used)

	daily := tr.DailyWindow()
	require.Equal(t, 2, daily.Used)

	weekly := tr.WeeklyWindow()
	require.Equal(t, 2, weekly.Used)
}

func TestFiveHourWindowExcludesOldEvents(t *testing.T) {
	tr := openTestTracker(t, DefaultLimits())
	tr.slidingEvents = append(tr.slidingEvents, time.Now().Add(-6*time.Hour))
	tr.RecordMessage()

	five := tr.FiveHourWindow()
	require.Equal(t, 1, five.Used, "the 6h-old event must not count toward the 5h window")
}

func TestGetAlertsFiresAt90Percent(t *testing.T) {
	tr := openTestTracker(t, Limits{FiveHour: 10, Daily: 100, Weekly: 1000, ResetDay: time.Sunday})
	for i := 0; i < 9; i++ {
		tr.RecordMessage()
	}
	alerts := tr.GetAlerts()
	require.NotEmpty(t, alerts)
	var found bool
	for _, a := range alerts {
		if a.Window == "5h" {
			found = true
			require.GreaterOrEqual(t, a.Percent, 0.90)
		}
	}
	require.True(t, found)
}

func TestGetAlertsEmptyBelowThreshold(t *testing.T) {
	tr := openTestTracker(t, DefaultLimits())
	tr.RecordMessage()
	require.Empty(t, tr.GetAlerts())
}

func TestPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratelimit.json")
	bus := events.NewBus()
	tr, err := Open(path, DefaultLimits(), bus)
	require.NoError(t, err)
	tr.RecordMessage()
	tr.RecordMessage()
	require.NoError(t, tr.Persist())

	tr2, err := Open(path, DefaultLimits(), bus)
	require.NoError(t, err)
	require.Equal(t, 2, tr2.DailyWindow().Used)
	require.Equal(t, 2, tr2.FiveHourWindow().Used)
}

func TestMostRecentWeekday(t *testing.T) {
	// 2026-07-31 is a Friday.
	friday := time.Date(2026, 7, 31, 15, 0, 0, 0, time.Local)
	sunday := mostRecentWeekday(friday, time.Sunday)
	require.Equal(t, time.Sunday, sunday.Weekday())
	require.True(t, sunday.Before(friday))
}
