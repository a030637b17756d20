package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

type SnapshotSummary struct {
	Year             int `json:"year"`
	Month            int `json:"month"`
	UsersSnapshotted int `json:"usersSnapshotted"`
	RejectedRecords  int `json:"rejectedRecords"`
}

// ApplySnapshots recomputes the current year's balances of every active
// user in the tenant and stores them in one repeatable-read transaction, so
// every user is computed from the same view of leaves and overrides.
func ApplySnapshots(ctx context.Context, store SnapshotStore, tenantID string, now time.Time, defaults Settings) (SnapshotSummary, error) {
	summary := SnapshotSummary{Year: now.Year(), Month: int(now.Month())}

	settings, err := store.GetSettings(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		settings = defaults
	} else if err != nil {
		return summary, err
	}

	err = pgx.BeginTxFunc(ctx, store, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		users, err := store.ListActiveUsersTx(ctx, tx, tenantID)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		for _, userID := range users {
			leaves, err := store.ListApprovedLeavesTx(ctx, tx, tenantID, userID, summary.Year)
			if err != nil {
				return fmt.Errorf("leaves of %s: %w", userID, err)
			}
			overrides, err := store.ListOverridesTx(ctx, tx, tenantID, userID, summary.Year)
			if err != nil {
				return fmt.Errorf("overrides of %s: %w", userID, err)
			}

			months, issues := CalculateMonthlyBalances(settings, summary.Year, overrides, leaves)
			logIssues(tenantID, userID, issues)
			summary.RejectedRecords += len(issues)

			for _, row := range months {
				if err := store.UpsertSnapshotTx(ctx, tx, tenantID, userID, summary.Year, row); err != nil {
					return fmt.Errorf("store snapshot of %s: %w", userID, err)
				}
			}
			summary.UsersSnapshotted++
		}
		return store.RecordSnapshotRunTx(ctx, tx, tenantID, summary.Year, summary.Month, summary.UsersSnapshotted)
	})
	return summary, err
}

func logIssues(tenantID, userID string, issues []RecordIssue) {
	for _, issue := range issues {
		slog.Warn("leave record rejected",
			"tenantId", tenantID,
			"userId", userID,
			"kind", issue.Kind,
			"recordId", issue.RecordID,
			"reason", issue.Reason,
		)
	}
}
