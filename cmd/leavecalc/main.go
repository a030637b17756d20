package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"leavedesk/internal/domain/leave"
)

const appVersion = "0.3.0"

type balancesInput struct {
	UserID       string              `json:"userId"`
	Year         int                 `json:"year"`
	Settings     *leave.Settings     `json:"settings"`
	Overrides    []leave.Override    `json:"overrides"`
	Applications []leave.Application `json:"applications"`
}

type daysInput struct {
	StartDate    string          `json:"startDate"`
	EndDate      string          `json:"endDate"`
	Calendar     *leave.Calendar `json:"calendar"`
	WeekendDates []string        `json:"weekendDates"`
	Holidays     []leave.Holiday `json:"holidays"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "leavecalc",
		Short:        "Offline leave balance and leave-day calculator",
		SilenceUsage: true,
	}
	cmd.Version = appVersion
	cmd.SetVersionTemplate("leavecalc v{{.Version}}\n")
	cmd.AddCommand(newBalancesCmd(), newDaysCmd())
	return cmd
}

func newBalancesCmd() *cobra.Command {
	var (
		inputPath string
		format    string
	)
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Compute the twelve monthly balances for one user and year",
		RunE: func(cmd *cobra.Command, args []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "json" && format != "csv" {
				return fmt.Errorf("--format must be json or csv")
			}
			var in balancesInput
			if err := readInput(cmd, inputPath, &in); err != nil {
				return err
			}
			if in.Settings == nil {
				return fmt.Errorf("settings are required")
			}
			if in.Year < 1900 || in.Year > 9999 {
				return fmt.Errorf("year must be between 1900 and 9999")
			}

			overrides := make(map[int]leave.Override, len(in.Overrides))
			for _, o := range in.Overrides {
				if o.Month < 1 || o.Month > 12 {
					return fmt.Errorf("override month %d out of range", o.Month)
				}
				overrides[o.Month] = o
			}

			settings := in.Settings.Normalize()
			months, issues := leave.CalculateMonthlyBalances(settings, in.Year, overrides, in.Applications)
			logger := newLogger(cmd.ErrOrStderr())
			for _, issue := range issues {
				logger.Warn("record skipped", "kind", issue.Kind, "record", issue.RecordID, "reason", issue.Reason)
			}
			sheet := leave.BalanceSheet{
				UserID:   in.UserID,
				Year:     in.Year,
				Settings: settings,
				Months:   months,
				Summary:  leave.SummarizeYear(months),
				Issues:   issues,
			}
			if format == "csv" {
				return leave.WriteCSV(cmd.OutOrStdout(), sheet)
			}
			return writeJSON(cmd.OutOrStdout(), sheet)
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "-", "JSON input file (- for stdin)")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or csv")
	return cmd
}

func newDaysCmd() *cobra.Command {
	var inputPath string
	cmd := &cobra.Command{
		Use:   "days",
		Short: "Count chargeable leave days in a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in daysInput
			if err := readInput(cmd, inputPath, &in); err != nil {
				return err
			}
			weekends := in.WeekendDates
			if weekends == nil {
				start, end, err := leave.ParseRange(in.StartDate, in.EndDate)
				if err != nil {
					return err
				}
				cal := leave.DefaultCalendar()
				if in.Calendar != nil {
					cal = *in.Calendar
				}
				weekends, err = leave.WeekendDates(cal, start, end)
				if err != nil {
					return err
				}
			}

			out, err := leave.CalculateActualLeaveDays(in.StartDate, in.EndDate, weekends, in.Holidays)
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr())
			for _, issue := range out.Issues {
				logger.Warn("record skipped", "kind", issue.Kind, "record", issue.RecordID, "reason", issue.Reason)
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&inputPath, "input", "i", "-", "JSON input file (- for stdin)")
	return cmd
}

func readInput(cmd *cobra.Command, path string, dst any) error {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
