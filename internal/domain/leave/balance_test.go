package leave

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

var basicSettings = Settings{LeavesPerMonth: 1, MaxCarryForward: 1, MaxLeavesPerMonth: 2}

func TestCalculateMonthlyBalancesShape(t *testing.T) {
	months, issues := CalculateMonthlyBalances(basicSettings, 2024, nil, nil)
	require.Len(t, months, 12)
	assert.Empty(t, issues)
	for i, m := range months {
		assert.Equal(t, i+1, m.Month)
		assert.Equal(t, 1.0, m.MonthlyCredit)
	}
	assert.Equal(t, 12.0, SummarizeYear(months).TotalCredit)
}

func TestFebruaryAvailableCarriesUnusedJanuary(t *testing.T) {
	months, _ := CalculateMonthlyBalances(basicSettings, 2024, nil, nil)

	assert.Equal(t, 1.0, months[0].Available)
	assert.Equal(t, 1.0, months[0].Balance)
	assert.Equal(t, 1.0, months[1].CarriedForward)
	assert.Equal(t, 2.0, months[1].Available)
	assert.True(t, months[1].IsAutoCarried)
}

func TestWeekendsExcludedFromUsage(t *testing.T) {
	leaves := []Application{
		// Monday 4 March to Wednesday 13 March: ten days, one weekend.
		{ID: "a1", StartDate: "2024-03-04", EndDate: "2024-03-13", LeaveType: TypeCasual},
	}
	months, issues := CalculateMonthlyBalances(basicSettings, 2024, nil, leaves)
	require.Empty(t, issues)

	assert.Equal(t, 8.0, months[2].CasualLeaveUsed)
	assert.Equal(t, 0.0, months[2].SickLeaveUsed)
	assert.Equal(t, 0.0, months[2].Balance)
}

func TestUsageSplitsAcrossMonthsAndYears(t *testing.T) {
	leaves := []Application{
		{ID: "dec", StartDate: "2023-12-28", EndDate: "2024-01-05", LeaveType: TypeSick},
		{ID: "feb", StartDate: "2024-02-28", EndDate: "2024-03-01", LeaveType: "Casual"},
	}
	months, issues := CalculateMonthlyBalances(basicSettings, 2024, nil, leaves)
	require.Empty(t, issues)

	assert.Equal(t, 5.0, months[0].SickLeaveUsed)
	assert.Equal(t, 2.0, months[1].CasualLeaveUsed)
	assert.Equal(t, 1.0, months[2].CasualLeaveUsed)
}

func TestLOPAttributedToStartMonth(t *testing.T) {
	leaves := []Application{
		{ID: "lop", StartDate: "2024-03-28", EndDate: "2024-04-02", LeaveType: TypeCasual, IsLOP: true, LOPDays: 3},
	}
	months, _ := CalculateMonthlyBalances(basicSettings, 2024, nil, leaves)

	assert.Equal(t, 3.0, months[2].LOPDays)
	assert.Equal(t, 0.0, months[3].LOPDays)
	assert.Equal(t, 3.0, SummarizeYear(months).LOPDays)
}

func TestLOPFromPreviousYearIgnored(t *testing.T) {
	leaves := []Application{
		{ID: "lop", StartDate: "2023-12-29", EndDate: "2024-01-02", LeaveType: TypeCasual, IsLOP: true, LOPDays: 2},
	}
	months, _ := CalculateMonthlyBalances(basicSettings, 2024, nil, leaves)
	assert.Equal(t, 0.0, months[0].LOPDays)
}

func TestLOPDoesNotReduceAvailable(t *testing.T) {
	leaves := []Application{
		{ID: "lop", StartDate: "2024-06-01", EndDate: "2024-06-02", LeaveType: TypeCasual, IsLOP: true, LOPDays: 2},
	}
	months, _ := CalculateMonthlyBalances(basicSettings, 2024, nil, leaves)
	june := months[5]
	assert.Equal(t, 2.0, june.LOPDays)
	assert.Equal(t, june.Available, june.Balance)
}

func TestBalanceNeverNegative(t *testing.T) {
	leaves := []Application{
		{ID: "long", StartDate: "2024-01-01", EndDate: "2024-12-31", LeaveType: TypeSick},
	}
	months, _ := CalculateMonthlyBalances(basicSettings, 2024, nil, leaves)
	for _, m := range months {
		assert.GreaterOrEqual(t, m.Balance, 0.0, "month %d", m.Month)
	}
}

func TestJanuaryNeverCarries(t *testing.T) {
	overrides := map[int]Override{
		1: {Month: 1, CarriedForward: ptr(5), AdjustmentReason: "migrated"},
	}
	months, _ := CalculateMonthlyBalances(basicSettings, 2024, overrides, nil)
	assert.Equal(t, 0.0, months[0].CarriedForward)
	assert.False(t, months[0].IsAutoCarried)
}

func TestOverrides(t *testing.T) {
	tests := []struct {
		name          string
		override      Override
		wantCarried   float64
		wantAvailable float64
		wantAuto      bool
	}{
		{
			name:          "carried forward bypasses cap",
			override:      Override{Month: 3, CarriedForward: ptr(5)},
			wantCarried:   5,
			wantAvailable: 6,
		},
		{
			name:          "reason with zero carry is manual",
			override:      Override{Month: 3, CarriedForward: ptr(0), AdjustmentReason: "reset"},
			wantCarried:   0,
			wantAvailable: 1,
		},
		{
			name:          "zero carry without reason keeps auto carry",
			override:      Override{Month: 3, CarriedForward: ptr(0)},
			wantCarried:   1,
			wantAvailable: 2,
			wantAuto:      true,
		},
		{
			name:          "additional credit still capped without manual override",
			override:      Override{Month: 3, AdditionalCredit: ptr(2)},
			wantCarried:   1,
			wantAvailable: 2,
			wantAuto:      true,
		},
		{
			name:          "additional credit with manual override",
			override:      Override{Month: 3, CarriedForward: ptr(1), AdditionalCredit: ptr(2), AdjustmentReason: "bonus"},
			wantCarried:   1,
			wantAvailable: 4,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			months, _ := CalculateMonthlyBalances(basicSettings, 2024, map[int]Override{3: tc.override}, nil)
			march := months[2]
			assert.Equal(t, tc.wantCarried, march.CarriedForward)
			assert.Equal(t, tc.wantAvailable, march.Available)
			assert.Equal(t, tc.wantAuto, march.IsAutoCarried)
			assert.Equal(t, tc.override.AdjustmentReason, march.AdjustmentReason)
		})
	}
}

func TestOverrideBalanceFeedsNextMonth(t *testing.T) {
	overrides := map[int]Override{4: {Month: 4, CarriedForward: ptr(6), AdjustmentReason: "transfer"}}
	months, _ := CalculateMonthlyBalances(Settings{LeavesPerMonth: 1, MaxCarryForward: 3, MaxLeavesPerMonth: 2}, 2024, overrides, nil)

	assert.Equal(t, 7.0, months[3].Balance)
	assert.Equal(t, 3.0, months[4].CarriedForward)
	assert.Equal(t, 2.0, months[4].Available)
}

func TestNegativeSettingsClamped(t *testing.T) {
	settings := Settings{LeavesPerMonth: -1, MaxCarryForward: -4, MaxLeavesPerMonth: -2}
	months, _ := CalculateMonthlyBalances(settings, 2024, nil, nil)
	for _, m := range months {
		assert.Equal(t, 0.0, m.MonthlyCredit)
		assert.Equal(t, 0.0, m.Available)
		assert.Equal(t, 0.0, m.Balance)
	}
}

func TestInvalidRecordsRejectedAndSkipped(t *testing.T) {
	leaves := []Application{
		{ID: "bad-date", StartDate: "2024-13-01", EndDate: "2024-13-02", LeaveType: TypeSick},
		{ID: "reversed", StartDate: "2024-05-10", EndDate: "2024-05-01", LeaveType: TypeSick},
		{ID: "unknown", StartDate: "2024-05-06", EndDate: "2024-05-06", LeaveType: "earned", IsLOP: true, LOPDays: 1},
		{ID: "good", StartDate: "2024-05-07", EndDate: "2024-05-07", LeaveType: TypeSick},
	}
	months, issues := CalculateMonthlyBalances(basicSettings, 2024, nil, leaves)

	require.Len(t, issues, 3)
	assert.Equal(t, "bad-date", issues[0].RecordID)
	assert.Equal(t, "reversed", issues[1].RecordID)
	assert.Equal(t, "unknown", issues[2].RecordID)
	assert.Equal(t, IssueApplication, issues[0].Kind)

	assert.Equal(t, 1.0, months[4].SickLeaveUsed)
	assert.Equal(t, 0.0, months[4].CasualLeaveUsed)
	assert.Equal(t, 1.0, months[4].LOPDays)
}

func TestCalculateMonthlyBalancesIdempotent(t *testing.T) {
	overrides := map[int]Override{6: {Month: 6, CarriedForward: ptr(2), AdjustmentReason: "audit"}}
	leaves := []Application{
		{ID: "a", StartDate: "2024-02-05", EndDate: "2024-02-09", LeaveType: TypeCasual},
		{ID: "b", StartDate: "2024-07-01", EndDate: "2024-07-03", LeaveType: TypeSick, IsLOP: true, LOPDays: 1.5},
		{ID: "c", StartDate: "bogus", EndDate: "2024-07-03", LeaveType: TypeSick},
	}

	first, firstIssues := CalculateMonthlyBalances(basicSettings, 2024, overrides, leaves)
	second, secondIssues := CalculateMonthlyBalances(basicSettings, 2024, overrides, leaves)

	a, err := json.Marshal(struct {
		M []MonthlyBalance
		I []RecordIssue
	}{first, firstIssues})
	require.NoError(t, err)
	b, err := json.Marshal(struct {
		M []MonthlyBalance
		I []RecordIssue
	}{second, secondIssues})
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSummarizeYear(t *testing.T) {
	leaves := []Application{
		{ID: "a", StartDate: "2024-02-05", EndDate: "2024-02-06", LeaveType: TypeCasual},
		{ID: "b", StartDate: "2024-03-05", EndDate: "2024-03-05", LeaveType: TypeSick},
	}
	months, _ := CalculateMonthlyBalances(basicSettings, 2024, nil, leaves)
	sum := SummarizeYear(months)

	assert.Equal(t, 12.0, sum.TotalCredit)
	assert.Equal(t, 2.0, sum.CasualLeaveUsed)
	assert.Equal(t, 1.0, sum.SickLeaveUsed)
	assert.Equal(t, months[11].Balance, sum.ClosingBalance)
	assert.Equal(t, YearSummary{}, SummarizeYear(nil))
}
