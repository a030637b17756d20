package leave

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidRange = errors.New("end date before start date")
)

const secondsPerDay = 24 * 60 * 60

// civilDay numbers calendar days so that consecutive dates differ by one
// whatever their location or time of day.
func civilDay(t time.Time) int64 {
	return truncateDay(t).Unix() / secondsPerDay
}

// CalculateDays counts the calendar days from start to end, both included.
func CalculateDays(start, end time.Time) (int, error) {
	from, to := civilDay(start), civilDay(end)
	if to < from {
		return 0, ErrInvalidRange
	}
	return int(to-from) + 1, nil
}

// ParseDay reads YYYY-MM-DD as midnight UTC. A time suffix after 'T' or a
// space is dropped, so timestamps from other systems still resolve to
// their calendar date.
func ParseDay(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if i := strings.IndexAny(value, "T "); i == len(dateLayout) {
		value = value[:i]
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return parsed, nil
}

// ParseRange parses both ends and checks their order.
func ParseRange(startDate, endDate string) (start, end time.Time, err error) {
	if start, err = ParseDay(startDate); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end, err = ParseDay(endDate); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, ErrInvalidRange
	}
	return start, end, nil
}

func dayKey(t time.Time) string {
	return t.Format(dateLayout)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isWeekday(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
