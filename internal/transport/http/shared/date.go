package shared

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidYear  = errors.New("year must be between 1900 and 9999")
	ErrInvalidMonth = errors.New("month must be between 1 and 12")
)

const dayLayout = "2006-01-02"

// ParseDate reads a YYYY-MM-DD day. An empty value yields the zero time.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(dayLayout, value)
}

// ParseYear reads a calendar year, falling back to the current one when raw
// is empty.
func ParseYear(raw string, now time.Time) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.Year(), nil
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1900 || year > 9999 {
		return 0, ErrInvalidYear
	}
	return year, nil
}

func ParseMonth(raw string) (int, error) {
	month, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || month < 1 || month > 12 {
		return 0, ErrInvalidMonth
	}
	return month, nil
}
