package leave

import (
	"bytes"
	"encoding/csv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSheet() BalanceSheet {
	months, issues := CalculateMonthlyBalances(basicSettings, 2024, nil, []Application{
		{ID: "a", StartDate: "2024-02-05", EndDate: "2024-02-05", LeaveType: TypeCasual},
	})
	return BalanceSheet{UserID: "u1", Year: 2024, Settings: basicSettings, Months: months, Summary: SummarizeYear(months), Issues: issues}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleSheet()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 13)
	assert.Equal(t, statementHeader, records[0])
	assert.Equal(t, []string{"February", "1", "1", "0", "2", "0", "1", "0", "1", "true"}, records[2])
}

func TestRenderStatementPDF(t *testing.T) {
	out, err := RenderStatementPDF(sampleSheet(), "Ada Lovelace")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}
