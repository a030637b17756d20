package leave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateActualLeaveDays(t *testing.T) {
	weekends := []string{"2024-03-09", "2024-03-10"}
	holidays := []Holiday{{ID: "h1", Date: "2024-03-08", Name: "Founders Day"}}

	got, err := CalculateActualLeaveDays("2024-03-01", "2024-03-10", weekends, holidays)
	require.NoError(t, err)

	assert.Equal(t, 10, got.TotalCalendarDays)
	assert.Equal(t, 2, got.WeekendsInRange)
	assert.Equal(t, 1, got.HolidaysInRange)
	assert.Equal(t, 7, got.ActualLeaveDays)
	assert.Empty(t, got.Issues)
}

func TestCalculateActualLeaveDaysCases(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		weekends   []string
		holidays   []Holiday
		want       DayBreakdown
	}{
		{
			name:     "holiday on weekend counted once",
			start:    "2024-03-08",
			end:      "2024-03-10",
			weekends: []string{"2024-03-09", "2024-03-10"},
			holidays: []Holiday{{Date: "2024-03-09", Name: "Overlap"}},
			want:     DayBreakdown{TotalCalendarDays: 3, WeekendsInRange: 2, HolidaysInRange: 0, ActualLeaveDays: 1},
		},
		{
			name:     "multi day holiday span clipped to range",
			start:    "2024-04-10",
			end:      "2024-04-12",
			holidays: []Holiday{{Date: "2024-04-08", EndDate: "2024-04-11", Name: "Spring break"}},
			want:     DayBreakdown{TotalCalendarDays: 3, HolidaysInRange: 2, ActualLeaveDays: 1},
		},
		{
			name:     "overlapping holidays not double counted",
			start:    "2024-05-01",
			end:      "2024-05-03",
			holidays: []Holiday{{Date: "2024-05-01", EndDate: "2024-05-02", Name: "A"}, {Date: "2024-05-02", Name: "B"}},
			want:     DayBreakdown{TotalCalendarDays: 3, HolidaysInRange: 2, ActualLeaveDays: 1},
		},
		{
			name:     "whole range off",
			start:    "2024-03-09",
			end:      "2024-03-10",
			weekends: []string{"2024-03-09", "2024-03-10"},
			want:     DayBreakdown{TotalCalendarDays: 2, WeekendsInRange: 2, ActualLeaveDays: 0},
		},
		{
			name:     "weekend list matched by exact date string",
			start:    "2024-03-01",
			end:      "2024-03-03",
			weekends: []string{"2024-03-02", "2024-3-3"},
			want:     DayBreakdown{TotalCalendarDays: 3, WeekendsInRange: 1, ActualLeaveDays: 2},
		},
		{
			name:     "yearly recurring holiday",
			start:    "2024-12-24",
			end:      "2024-12-26",
			holidays: []Holiday{{Date: "2019-12-25", Name: "Christmas", RecurringYearly: true}},
			want:     DayBreakdown{TotalCalendarDays: 3, HolidaysInRange: 1, ActualLeaveDays: 2},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CalculateActualLeaveDays(tc.start, tc.end, tc.weekends, tc.holidays)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCalculateActualLeaveDaysErrors(t *testing.T) {
	_, err := CalculateActualLeaveDays("2024-03-10", "2024-03-01", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = CalculateActualLeaveDays("March 1", "2024-03-01", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestCalculateActualLeaveDaysSkipsBadHolidays(t *testing.T) {
	holidays := []Holiday{
		{ID: "bad", Date: "2024-02-30", Name: "Nope"},
		{ID: "reversed", Date: "2024-03-05", EndDate: "2024-03-04", Name: "Backwards"},
		{ID: "ok", Date: "2024-03-04", Name: "Fine"},
	}
	got, err := CalculateActualLeaveDays("2024-03-04", "2024-03-05", nil, holidays)
	require.NoError(t, err)

	assert.Equal(t, 1, got.HolidaysInRange)
	assert.Equal(t, 1, got.ActualLeaveDays)
	require.Len(t, got.Issues, 2)
	assert.Equal(t, "bad", got.Issues[0].RecordID)
	assert.Equal(t, IssueHoliday, got.Issues[1].Kind)
}

func TestExpandHolidays(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	holidays := []Holiday{
		{Date: "2024-04-10", EndDate: "2024-04-12", Name: "Eid"},
		{Date: "2020-12-31", EndDate: "2021-01-01", Name: "New Year", RecurringYearly: true},
	}

	got, issues := ExpandHolidays(holidays, from, to)
	require.Empty(t, issues)

	assert.Equal(t, map[string]string{
		"2024-01-01": "New Year",
		"2024-04-10": "Eid",
		"2024-04-11": "Eid",
		"2024-04-12": "Eid",
		"2024-12-31": "New Year",
	}, got)
}
