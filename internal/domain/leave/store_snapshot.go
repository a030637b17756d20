package leave

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// BeginTx honours opts when the underlying handle is a pool. Inside an
// existing transaction it opens a savepoint, which inherits the outer
// isolation level.
func (s *Store) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	if b, ok := s.DB.(txBeginner); ok {
		return b.BeginTx(ctx, opts)
	}
	return s.DB.Begin(ctx)
}

func (s *Store) ListApprovedLeavesTx(ctx context.Context, tx pgx.Tx, tenantID, userID string, year int) ([]Application, error) {
	return NewStore(tx).ListApprovedLeaves(ctx, tenantID, userID, year)
}

func (s *Store) ListOverridesTx(ctx context.Context, tx pgx.Tx, tenantID, userID string, year int) (map[int]Override, error) {
	return NewStore(tx).ListOverrides(ctx, tenantID, userID, year)
}

func (s *Store) ListActiveUsersTx(ctx context.Context, tx pgx.Tx, tenantID string) ([]string, error) {
	rows, err := tx.Query(ctx, `
    SELECT id
    FROM users
    WHERE tenant_id = $1 AND status = 'active'
    ORDER BY id
  `, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (s *Store) UpsertSnapshotTx(ctx context.Context, tx pgx.Tx, tenantID, userID string, year int, row MonthlyBalance) error {
	_, err := tx.Exec(ctx, `
      INSERT INTO leave_balance_snapshots (tenant_id, user_id, year, month, monthly_credit, carried_forward,
        additional_credit, available, sick_leave_used, casual_leave_used, lop_days, balance, is_auto_carried)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
      ON CONFLICT (tenant_id, user_id, year, month)
      DO UPDATE SET monthly_credit = EXCLUDED.monthly_credit,
                    carried_forward = EXCLUDED.carried_forward,
                    additional_credit = EXCLUDED.additional_credit,
                    available = EXCLUDED.available,
                    sick_leave_used = EXCLUDED.sick_leave_used,
                    casual_leave_used = EXCLUDED.casual_leave_used,
                    lop_days = EXCLUDED.lop_days,
                    balance = EXCLUDED.balance,
                    is_auto_carried = EXCLUDED.is_auto_carried,
                    computed_at = now()
    `, tenantID, userID, year, row.Month, row.MonthlyCredit, row.CarriedForward, row.AdditionalCredit,
		row.Available, row.SickLeaveUsed, row.CasualLeaveUsed, row.LOPDays, row.Balance, row.IsAutoCarried)
	return err
}

func (s *Store) RecordSnapshotRunTx(ctx context.Context, tx pgx.Tx, tenantID string, year, month, users int) error {
	_, err := tx.Exec(ctx, `
    INSERT INTO leave_snapshot_runs (tenant_id, year, month, users_snapshotted)
    VALUES ($1,$2,$3,$4)
    ON CONFLICT (tenant_id)
      DO UPDATE SET year = EXCLUDED.year,
                    month = EXCLUDED.month,
                    users_snapshotted = EXCLUDED.users_snapshotted,
                    updated_at = now()
  `, tenantID, year, month, users)
	return err
}
