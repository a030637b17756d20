package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"leavedesk/internal/platform/querier"
)

const maxRunListing = 200

// RunLog persists job executions.
type RunLog interface {
	Start(ctx context.Context, tenantID, jobType string) (string, error)
	Finish(ctx context.Context, runID, status string, details []byte) error
	List(ctx context.Context, tenantID, jobType string, limit int) ([]Run, error)
	Tenants(ctx context.Context) ([]string, error)
}

type Run struct {
	ID          string          `json:"id"`
	JobType     string          `json:"jobType"`
	Status      string          `json:"status"`
	Details     json.RawMessage `json:"details,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// PGRunLog stores runs in job_runs.
type PGRunLog struct {
	DB querier.Querier
}

func NewRunLog(db querier.Querier) *PGRunLog {
	return &PGRunLog{DB: db}
}

func (l *PGRunLog) Start(ctx context.Context, tenantID, jobType string) (string, error) {
	var id string
	err := l.DB.QueryRow(ctx,
		`INSERT INTO job_runs (tenant_id, job_type, status) VALUES ($1, $2, $3) RETURNING id`,
		tenantID, jobType, StatusRunning,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("start %s run: %w", jobType, err)
	}
	return id, nil
}

// Finish closes a running run. Runs already closed are left alone.
func (l *PGRunLog) Finish(ctx context.Context, runID, status string, details []byte) error {
	tag, err := l.DB.Exec(ctx,
		`UPDATE job_runs SET status = $2, details_json = $3, completed_at = now()
		 WHERE id = $1 AND completed_at IS NULL`,
		runID, status, details,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: not running", runID)
	}
	return nil
}

// List returns the newest runs first. limit is clamped to 1..200.
func (l *PGRunLog) List(ctx context.Context, tenantID, jobType string, limit int) ([]Run, error) {
	limit = min(max(limit, 1), maxRunListing)
	rows, err := l.DB.Query(ctx,
		`SELECT id, job_type, status, details_json, started_at, completed_at
		 FROM job_runs
		 WHERE tenant_id = $1 AND job_type = $2
		 ORDER BY started_at DESC, id
		 LIMIT $3`,
		tenantID, jobType, limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Run, error) {
		var r Run
		err := row.Scan(&r.ID, &r.JobType, &r.Status, &r.Details, &r.StartedAt, &r.CompletedAt)
		return r, err
	})
}

func (l *PGRunLog) Tenants(ctx context.Context) ([]string, error) {
	rows, err := l.DB.Query(ctx, `SELECT id::text FROM tenants ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// AbandonStale fails runs left open by a process that stopped before
// finishing them. It is meant to run once at startup, before workers start.
func (l *PGRunLog) AbandonStale(ctx context.Context) (int64, error) {
	tag, err := l.DB.Exec(ctx,
		`UPDATE job_runs SET status = $1, details_json = $2, completed_at = now()
		 WHERE completed_at IS NULL`,
		StatusFailed, []byte(`{"error":"abandoned at shutdown"}`),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
