package leave

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utcDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateDays(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*60*60+30*60)
	cases := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"single day", utcDay(2025, 1, 10), utcDay(2025, 1, 10), 1},
		{"three days", utcDay(2025, 1, 10), utcDay(2025, 1, 12), 3},
		{"leap february", utcDay(2024, 2, 1), utcDay(2024, 2, 29), 29},
		{"whole leap year", utcDay(2024, 1, 1), utcDay(2024, 12, 31), 366},
		{"time of day ignored", utcDay(2025, 3, 1).Add(23 * time.Hour), utcDay(2025, 3, 2).Add(time.Hour), 2},
		{"calendar date of each location", time.Date(2025, 3, 1, 23, 0, 0, 0, kolkata), time.Date(2025, 3, 2, 1, 0, 0, 0, kolkata), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CalculateDays(tc.start, tc.end)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := CalculateDays(utcDay(2025, 2, 10), utcDay(2025, 2, 9))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestParseDay(t *testing.T) {
	for _, raw := range []string{"2024-03-08", " 2024-03-08 ", "2024-03-08T10:30:00Z", "2024-03-08 10:30"} {
		got, err := ParseDay(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, utcDay(2024, 3, 8), got, raw)
	}
	for _, raw := range []string{"", "08/03/2024", "2024-02-30", "2024-03-08X"} {
		_, err := ParseDay(raw)
		assert.ErrorIs(t, err, ErrInvalidDate, raw)
	}
}

func TestParseRange(t *testing.T) {
	start, end, err := ParseRange("2024-03-01", "2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, utcDay(2024, 3, 1), start)
	assert.Equal(t, utcDay(2024, 3, 10), end)

	_, _, err = ParseRange("2024-03-10", "2024-03-01")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, _, err = ParseRange("2024-03-01", "soon")
	assert.ErrorIs(t, err, ErrInvalidDate)
}
