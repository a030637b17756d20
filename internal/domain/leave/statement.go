package leave

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
)

var statementHeader = []string{
	"month", "monthly_credit", "carried_forward", "additional_credit", "available",
	"sick_leave_used", "casual_leave_used", "lop_days", "balance", "auto_carried",
}

func formatDays(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func statementRow(m MonthlyBalance) []string {
	return []string{
		time.Month(m.Month).String(),
		formatDays(m.MonthlyCredit),
		formatDays(m.CarriedForward),
		formatDays(m.AdditionalCredit),
		formatDays(m.Available),
		formatDays(m.SickLeaveUsed),
		formatDays(m.CasualLeaveUsed),
		formatDays(m.LOPDays),
		formatDays(m.Balance),
		strconv.FormatBool(m.IsAutoCarried),
	}
}

// WriteCSV writes one row per month after a header row.
func WriteCSV(w io.Writer, sheet BalanceSheet) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(statementHeader); err != nil {
		return err
	}
	for _, m := range sheet.Months {
		if err := writer.Write(statementRow(m)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// RenderStatementPDF renders the yearly balance sheet as an A4 landscape
// statement.
func RenderStatementPDF(sheet BalanceSheet, employeeName string) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Leave Statement")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	if employeeName == "" {
		employeeName = sheet.UserID
	}
	pdf.Cell(0, 7, fmt.Sprintf("Employee: %s", employeeName))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Year: %d", sheet.Year))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Policy: %s per month, carry forward up to %s, monthly cap %s",
		formatDays(sheet.Settings.LeavesPerMonth), formatDays(sheet.Settings.MaxCarryForward), formatDays(sheet.Settings.MaxLeavesPerMonth)))
	pdf.Ln(10)

	widths := []float64{30, 26, 28, 28, 24, 24, 26, 22, 22, 24}
	titles := []string{"Month", "Credit", "Carried", "Additional", "Available", "Sick", "Casual", "LOP", "Balance", "Auto"}
	pdf.SetFont("Helvetica", "B", 10)
	for i, title := range titles {
		pdf.CellFormat(widths[i], 8, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, m := range sheet.Months {
		row := statementRow(m)
		if m.IsAutoCarried {
			row[9] = "yes"
		} else {
			row[9] = ""
		}
		for i, value := range row {
			align := "R"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 7, value, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	sum := sheet.Summary
	pdf.Cell(0, 7, fmt.Sprintf("Total credit: %s   Sick used: %s   Casual used: %s   LOP: %s   Closing balance: %s",
		formatDays(sum.TotalCredit), formatDays(sum.SickLeaveUsed), formatDays(sum.CasualLeaveUsed), formatDays(sum.LOPDays), formatDays(sum.ClosingBalance)))
	if len(sheet.Issues) > 0 {
		pdf.Ln(7)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.Cell(0, 6, fmt.Sprintf("%d record(s) were skipped because of invalid data.", len(sheet.Issues)))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
