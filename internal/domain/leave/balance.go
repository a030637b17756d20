package leave

import (
	"math"
	"strings"
	"time"
)

const (
	IssueApplication = "application"
	IssueHoliday     = "holiday"
	IssueCalendar    = "calendar"
)

// CalculateMonthlyBalances projects twelve monthly balances for year from
// the tenant settings, the user's manual overrides and approved leaves.
// Records with bad dates or unknown leave types are returned as issues and
// otherwise ignored. The function keeps no state between calls.
func CalculateMonthlyBalances(settings Settings, year int, overrides map[int]Override, approved []Application) ([]MonthlyBalance, []RecordIssue) {
	settings = settings.Normalize()

	var sick, casual, lop [13]float64
	var issues []RecordIssue

	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

	for _, app := range approved {
		start, end, err := ParseRange(app.StartDate, app.EndDate)
		if err != nil {
			issues = append(issues, RecordIssue{RecordID: app.ID, Kind: IssueApplication, Reason: err.Error()})
			continue
		}

		var bucket *[13]float64
		switch strings.ToLower(strings.TrimSpace(app.LeaveType)) {
		case TypeSick:
			bucket = &sick
		case TypeCasual:
			bucket = &casual
		default:
			issues = append(issues, RecordIssue{RecordID: app.ID, Kind: IssueApplication, Reason: "unsupported leave type " + app.LeaveType})
		}

		if bucket != nil {
			from, to := maxTime(start, yearStart), minTime(end, yearEnd)
			for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
				if isWeekday(d) {
					bucket[d.Month()]++
				}
			}
		}

		// LOP is charged in full to the start month, even for spans that
		// continue into the next month.
		if app.IsLOP && app.LOPDays > 0 && !math.IsInf(app.LOPDays, 1) && start.Year() == year {
			lop[start.Month()] += app.LOPDays
		}
	}

	months := make([]MonthlyBalance, 0, 12)
	previous := 0.0
	for m := 1; m <= 12; m++ {
		override, exists := overrides[m]
		manual := exists && override.manual()

		autoCarried := 0.0
		if m > 1 {
			autoCarried = math.Min(previous, settings.MaxCarryForward)
		}
		carried := autoCarried
		if manual {
			carried = override.carriedForward()
		}
		if m == 1 {
			carried = 0
		}

		additional := 0.0
		if exists {
			additional = override.additionalCredit()
		}

		available := settings.LeavesPerMonth + carried + additional
		if !manual {
			available = math.Min(available, settings.MaxLeavesPerMonth)
		}

		used := sick[m] + casual[m]
		balance := math.Max(0, available-used)

		row := MonthlyBalance{
			Month:            m,
			MonthlyCredit:    settings.LeavesPerMonth,
			CarriedForward:   carried,
			AdditionalCredit: additional,
			Available:        available,
			SickLeaveUsed:    sick[m],
			CasualLeaveUsed:  casual[m],
			LOPDays:          lop[m],
			Balance:          balance,
			IsAutoCarried:    !manual && carried > 0,
		}
		if exists {
			row.AdjustmentReason = override.AdjustmentReason
		}
		months = append(months, row)
		previous = balance
	}

	return months, issues
}

// SummarizeYear rolls the monthly rows up into yearly totals.
func SummarizeYear(months []MonthlyBalance) YearSummary {
	var out YearSummary
	for _, m := range months {
		out.TotalCredit += m.MonthlyCredit
		out.AdditionalCredit += m.AdditionalCredit
		out.SickLeaveUsed += m.SickLeaveUsed
		out.CasualLeaveUsed += m.CasualLeaveUsed
		out.LOPDays += m.LOPDays
	}
	if len(months) > 0 {
		out.ClosingBalance = months[len(months)-1].Balance
	}
	return out
}
