package payroll

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLOPDeduction(t *testing.T) {
	tests := []struct {
		name        string
		salary      string
		workingDays int
		lopDays     float64
		wantDeduct  string
		wantNet     string
	}{
		{name: "no lop", salary: "3000", workingDays: 21, lopDays: 0, wantDeduct: "0", wantNet: "3000"},
		{name: "three days", salary: "3000", workingDays: 20, lopDays: 3, wantDeduct: "450", wantNet: "2550"},
		{name: "half day rounds to cents", salary: "1000", workingDays: 21, lopDays: 0.5, wantDeduct: "23.81", wantNet: "976.19"},
		{name: "capped at salary", salary: "1000", workingDays: 20, lopDays: 25, wantDeduct: "1000", wantNet: "0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LOPDeduction(dec(tc.salary), tc.workingDays, tc.lopDays)
			require.NoError(t, err)
			assert.True(t, got.Deduction.Equal(dec(tc.wantDeduct)), "deduction %s", got.Deduction)
			assert.True(t, got.Net.Equal(dec(tc.wantNet)), "net %s", got.Net)
			assert.True(t, got.Gross.Equal(dec(tc.salary)))
		})
	}
}

func TestLOPDeductionErrors(t *testing.T) {
	_, err := LOPDeduction(dec("-1"), 20, 1)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = LOPDeduction(decimal.Zero, 0, 1)
	assert.ErrorIs(t, err, ErrNoWorkingDays)

	_, err = LOPDeduction(dec("100"), 20, -1)
	assert.ErrorIs(t, err, ErrInvalidLOPDays)
}
