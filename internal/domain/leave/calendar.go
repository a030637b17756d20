package leave

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

const DefaultWeeklyOffRule = "FREQ=WEEKLY;BYDAY=SA,SU"

var ErrInvalidRule = errors.New("invalid weekly off rule")

func DefaultCalendar() Calendar {
	return Calendar{WeeklyOffRule: DefaultWeeklyOffRule}
}

// ParseWeeklyOffRule validates an RRULE body. Only weekly, monthly and
// yearly frequencies are accepted.
func ParseWeeklyOffRule(rule string) (*rrule.ROption, error) {
	opt, err := rrule.StrToROption(strings.TrimSpace(rule))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	switch opt.Freq {
	case rrule.WEEKLY, rrule.MONTHLY, rrule.YEARLY:
	default:
		return nil, fmt.Errorf("%w: unsupported frequency %v", ErrInvalidRule, opt.Freq)
	}
	return opt, nil
}

// WeekendDates materializes the calendar's off days between from and to
// inclusive as sorted YYYY-MM-DD strings. An empty rule yields only the
// extra dates.
func WeekendDates(cal Calendar, from, to time.Time) ([]string, error) {
	from, to = truncateDay(from), truncateDay(to)
	if to.Before(from) {
		return nil, ErrInvalidRange
	}

	seen := map[string]struct{}{}
	if strings.TrimSpace(cal.WeeklyOffRule) != "" {
		opt, err := ParseWeeklyOffRule(cal.WeeklyOffRule)
		if err != nil {
			return nil, err
		}
		opt.Dtstart = from
		rr, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		for _, occurrence := range rr.Between(from, to.Add(24*time.Hour-time.Nanosecond), true) {
			seen[dayKey(occurrence.UTC())] = struct{}{}
		}
	}

	for _, raw := range cal.ExtraOffDates {
		day, err := ParseDay(raw)
		if err != nil {
			continue
		}
		if day.Before(from) || day.After(to) {
			continue
		}
		seen[dayKey(day)] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Strings(out)
	return out, nil
}

// ExpandHolidays returns every holiday date inside [from, to] mapped to the
// holiday name. Spans are expanded day by day; yearly recurring holidays
// are repeated on their anniversary.
func ExpandHolidays(holidays []Holiday, from, to time.Time) (map[string]string, []RecordIssue) {
	from, to = truncateDay(from), truncateDay(to)
	out := map[string]string{}
	var issues []RecordIssue

	for _, h := range holidays {
		start, err := ParseDay(h.Date)
		if err != nil {
			issues = append(issues, RecordIssue{RecordID: h.ID, Kind: IssueHoliday, Reason: err.Error()})
			continue
		}
		end := start
		if strings.TrimSpace(h.EndDate) != "" {
			end, err = ParseDay(h.EndDate)
			if err != nil {
				issues = append(issues, RecordIssue{RecordID: h.ID, Kind: IssueHoliday, Reason: err.Error()})
				continue
			}
			if end.Before(start) {
				issues = append(issues, RecordIssue{RecordID: h.ID, Kind: IssueHoliday, Reason: ErrInvalidRange.Error()})
				continue
			}
		}

		if !h.RecurringYearly {
			markSpan(out, h.Name, start, end, from, to)
			continue
		}

		span := end.Sub(start)
		rr, err := rrule.NewRRule(rrule.ROption{Freq: rrule.YEARLY, Dtstart: start})
		if err != nil {
			issues = append(issues, RecordIssue{RecordID: h.ID, Kind: IssueHoliday, Reason: err.Error()})
			continue
		}
		for _, occurrence := range rr.Between(from.Add(-span), to, true) {
			markSpan(out, h.Name, occurrence, occurrence.Add(span), from, to)
		}
	}
	return out, issues
}

func markSpan(out map[string]string, name string, start, end, from, to time.Time) {
	start, end = maxTime(start, from), minTime(end, to)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := dayKey(d)
		if _, ok := out[key]; !ok {
			out[key] = name
		}
	}
}
