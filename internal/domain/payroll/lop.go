package payroll

import "github.com/shopspring/decimal"

type LOPResult struct {
	MonthlySalary decimal.Decimal `json:"monthlySalary"`
	WorkingDays   int             `json:"workingDays"`
	LOPDays       decimal.Decimal `json:"lopDays"`
	DailyRate     decimal.Decimal `json:"dailyRate"`
	Deduction     decimal.Decimal `json:"deduction"`
	Gross         decimal.Decimal `json:"gross"`
	Net           decimal.Decimal `json:"net"`
}

// LOPDeduction prorates monthlySalary over the month's working days and
// deducts lopDays of pay, rounded to cents. The deduction never exceeds the
// salary.
func LOPDeduction(monthlySalary decimal.Decimal, workingDays int, lopDays float64) (LOPResult, error) {
	if monthlySalary.IsNegative() {
		return LOPResult{}, ErrInvalidAmount
	}
	if workingDays <= 0 {
		return LOPResult{}, ErrNoWorkingDays
	}
	if lopDays < 0 {
		return LOPResult{}, ErrInvalidLOPDays
	}

	days := decimal.NewFromFloat(lopDays)
	divisor := decimal.NewFromInt(int64(workingDays))
	deduction := monthlySalary.Mul(days).Div(divisor).Round(2)
	if deduction.GreaterThan(monthlySalary) {
		deduction = monthlySalary
	}

	totals := Summarize(monthlySalary, Line{Kind: Deduction, Label: LabelLossOfPay, Amount: deduction})
	return LOPResult{
		MonthlySalary: monthlySalary,
		WorkingDays:   workingDays,
		LOPDays:       days,
		DailyRate:     monthlySalary.Div(divisor).Round(2),
		Deduction:     deduction,
		Gross:         totals.Gross,
		Net:           totals.Net,
	}, nil
}
