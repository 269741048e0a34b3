package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScheduleRejectsBadExpressions(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "5-1 * * * *", "*/0 * * * *", "x * * * *", "@daily"} {
		_, err := ParseSchedule(expr)
		assert.Error(t, err, expr)
	}
}

func TestScheduleNextWeekdays(t *testing.T) {
	s, err := ParseSchedule("30 18 * * 1-5")
	require.NoError(t, err)

	// Friday 2025-03-21 19:00 -> Monday 2025-03-24 18:30.
	assert.Equal(t, time.Date(2025, 3, 24, 18, 30, 0, 0, time.UTC),
		s.Next(time.Date(2025, 3, 21, 19, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2025, 3, 21, 18, 30, 0, 0, time.UTC),
		s.Next(time.Date(2025, 3, 21, 18, 29, 59, 0, time.UTC)))
}

func TestScheduleStepsAndLists(t *testing.T) {
	s, err := ParseSchedule("*/15 9,17 * * *")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 3, 21, 9, 30, 0, 0, time.UTC),
		s.Next(time.Date(2025, 3, 21, 9, 16, 0, 0, time.UTC)))
	assert.Equal(t, time.Date(2025, 3, 21, 17, 0, 0, 0, time.UTC),
		s.Next(time.Date(2025, 3, 21, 9, 45, 0, 0, time.UTC)))
}

func TestScheduleSundayAsSeven(t *testing.T) {
	s, err := ParseSchedule("0 6 * * 7")
	require.NoError(t, err)
	assert.Equal(t, time.Sunday, s.Next(time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC)).Weekday())

	// Friday through Sunday, written with 7 as the range end.
	s, err = ParseSchedule("0 6 * * 5-7")
	require.NoError(t, err)
	next := s.Next(time.Date(2025, 3, 22, 7, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 23, 6, 0, 0, 0, time.UTC), next)
}

func TestScheduleFollowsLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	s, err := ParseSchedule("0 19 * * *")
	require.NoError(t, err)

	next := s.Next(time.Date(2025, 3, 21, 12, 0, 0, 0, ny))
	assert.True(t, next.Equal(time.Date(2025, 3, 21, 23, 0, 0, 0, time.UTC)), next)
}

func TestBusinessDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 01:00 UTC on the 22nd is still the 21st in New York.
	got := BusinessDate(time.Date(2025, 3, 22, 1, 0, 0, 0, time.UTC), ny)
	assert.Equal(t, time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC), got)
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	ran := false
	s, err := NewScheduler("0 0 1 1 *", nil, func(context.Context, time.Time) error {
		ran = true
		return nil
	}, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
	assert.False(t, ran)
}
