package payroll

import "github.com/shopspring/decimal"

// LineKind says which side of the payslip a line lands on.
type LineKind string

const (
	Earning   LineKind = "earning"
	Deduction LineKind = "deduction"
)

// LabelLossOfPay marks the unpaid-leave deduction line.
const LabelLossOfPay = "loss_of_pay"

type Line struct {
	Kind   LineKind        `json:"kind"`
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Totals sums a payslip. Gross is base pay plus earnings; Net may go
// negative when deductions exceed it.
type Totals struct {
	Gross      decimal.Decimal `json:"gross"`
	Deductions decimal.Decimal `json:"deductions"`
	Net        decimal.Decimal `json:"net"`
}

// Summarize totals base pay and lines. Lines of any other kind are ignored.
func Summarize(base decimal.Decimal, lines ...Line) Totals {
	t := Totals{Gross: base, Deductions: decimal.Zero}
	for _, l := range lines {
		switch l.Kind {
		case Earning:
			t.Gross = t.Gross.Add(l.Amount)
		case Deduction:
			t.Deductions = t.Deductions.Add(l.Amount)
		}
	}
	t.Net = t.Gross.Sub(t.Deductions)
	return t
}
