package leave

import "strings"

// CalculateActualLeaveDays counts the chargeable days in [startDate, endDate].
// Weekends come from the institution's weekend-date list and are matched by
// YYYY-MM-DD string; a holiday falling on a weekend counts only as a weekend.
func CalculateActualLeaveDays(startDate, endDate string, weekendDates []string, holidays []Holiday) (DayBreakdown, error) {
	start, end, err := ParseRange(startDate, endDate)
	if err != nil {
		return DayBreakdown{}, err
	}
	total, err := CalculateDays(start, end)
	if err != nil {
		return DayBreakdown{}, err
	}

	weekends := make(map[string]struct{}, len(weekendDates))
	for _, d := range weekendDates {
		weekends[strings.TrimSpace(d)] = struct{}{}
	}
	holidayDays, issues := ExpandHolidays(holidays, start, end)

	out := DayBreakdown{TotalCalendarDays: total, Issues: issues}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := dayKey(d)
		if _, ok := weekends[key]; ok {
			out.WeekendsInRange++
			continue
		}
		if _, ok := holidayDays[key]; ok {
			out.HolidaysInRange++
		}
	}
	out.ActualLeaveDays = total - out.WeekendsInRange - out.HolidaysInRange
	if out.ActualLeaveDays < 0 {
		out.ActualLeaveDays = 0
	}
	return out, nil
}
