package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"leavedesk/internal/domain/leave"
)

const (
	JobLeaveSnapshot = "leave_snapshot"

	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	defaultWorkers    = 2
	defaultQueueDepth = 128
)

type Recorder interface {
	RecordSnapshotRun()
}

// Service runs background jobs on a small worker pool and records each run
// in the RunLog. A job type is queued at most once per tenant at a time.
type Service struct {
	Runs      RunLog
	Snapshots leave.SnapshotStore
	Defaults  leave.Settings
	Interval  time.Duration
	Workers   int
	Timeout   time.Duration
	Metrics   Recorder
	Now       func() time.Time

	queue   chan job
	mu      sync.Mutex
	pending map[string]struct{}
	wg      sync.WaitGroup
}

type job struct {
	Type     string
	TenantID string
	Run      func(context.Context) (any, error)
}

func (j job) key() string { return j.Type + "/" + j.TenantID }

func New(runs RunLog, snapshots leave.SnapshotStore, defaults leave.Settings, interval time.Duration) *Service {
	return &Service{
		Runs:      runs,
		Snapshots: snapshots,
		Defaults:  defaults,
		Interval:  interval,
		Workers:   defaultWorkers,
		Timeout:   5 * time.Minute,
		Now:       time.Now,
		queue:     make(chan job, defaultQueueDepth),
		pending:   map[string]struct{}{},
	}
}

// Start launches the workers and, when Interval is set, the snapshot
// scheduler. Everything stops when ctx is cancelled; Wait blocks until then.
func (s *Service) Start(ctx context.Context) {
	workers := max(s.Workers, 1)
	s.wg.Add(workers)
	for range workers {
		go func() {
			defer s.wg.Done()
			s.work(ctx)
		}()
	}
	if s.Interval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.schedule(ctx)
		}()
	}
}

func (s *Service) Wait() {
	s.wg.Wait()
}

// Enqueue queues run unless the same job is already pending for the tenant
// or the queue is full.
func (s *Service) Enqueue(jobType, tenantID string, run func(context.Context) (any, error)) bool {
	j := job{Type: jobType, TenantID: tenantID, Run: run}

	s.mu.Lock()
	if s.pending == nil {
		s.pending = map[string]struct{}{}
	}
	if _, queued := s.pending[j.key()]; queued {
		s.mu.Unlock()
		slog.Debug("job already queued", "jobType", jobType, "tenantId", tenantID)
		return false
	}
	s.pending[j.key()] = struct{}{}
	s.mu.Unlock()

	select {
	case s.queue <- j:
		return true
	default:
		s.release(j)
		slog.Warn("job queue full", "jobType", jobType, "tenantId", tenantID)
		return false
	}
}

func (s *Service) release(j job) {
	s.mu.Lock()
	delete(s.pending, j.key())
	s.mu.Unlock()
}

// RunNow runs synchronously and still records the run.
func (s *Service) RunNow(ctx context.Context, jobType, tenantID string, run func(context.Context) (any, error)) (any, error) {
	return s.execute(ctx, job{Type: jobType, TenantID: tenantID, Run: run})
}

// SnapshotTenant recomputes and stores the tenant's balances for the current
// month of the current year.
func (s *Service) SnapshotTenant(ctx context.Context, tenantID string) (leave.SnapshotSummary, error) {
	details, err := s.RunNow(ctx, JobLeaveSnapshot, tenantID, s.snapshotJob(tenantID))
	summary, _ := details.(leave.SnapshotSummary)
	return summary, err
}

func (s *Service) snapshotJob(tenantID string) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		summary, err := leave.ApplySnapshots(ctx, s.Snapshots, tenantID, s.Now(), s.Defaults)
		if err == nil && s.Metrics != nil {
			s.Metrics.RecordSnapshotRun()
		}
		return summary, err
	}
}

func (s *Service) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			s.release(j)
			if _, err := s.execute(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "tenantId", j.TenantID, "err", err)
			}
		}
	}
}

func (s *Service) execute(ctx context.Context, j job) (details any, err error) {
	runID, startErr := s.Runs.Start(ctx, j.TenantID, j.Type)
	if startErr != nil {
		slog.Warn("job run insert failed", "jobType", j.Type, "err", startErr)
	}
	defer func() {
		if runID != "" {
			s.finish(context.WithoutCancel(ctx), runID, details, err)
		}
	}()

	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	return safeRun(runCtx, j)
}

func safeRun(ctx context.Context, j job) (details any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Type, p)
		}
	}()
	return j.Run(ctx)
}

func (s *Service) finish(ctx context.Context, runID string, details any, runErr error) {
	status := StatusCompleted
	if runErr != nil {
		status = StatusFailed
		details = failureDetails(details, runErr)
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		slog.Warn("job details marshal failed", "runId", runID, "err", err)
		encoded = []byte("{}")
	}
	if err := s.Runs.Finish(ctx, runID, status, encoded); err != nil {
		slog.Warn("job run update failed", "runId", runID, "err", err)
	}
}

// failureDetails keeps whatever partial result a failed job produced next
// to the error that stopped it.
func failureDetails(details any, runErr error) map[string]any {
	out := map[string]any{"error": runErr.Error()}
	if details != nil {
		out["summary"] = details
	}
	return out
}

func (s *Service) schedule(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.enqueueSnapshots(ctx)
		}
	}
}

func (s *Service) enqueueSnapshots(ctx context.Context) {
	tenants, err := s.Runs.Tenants(ctx)
	if err != nil {
		slog.Warn("snapshot scheduler tenant lookup failed", "err", err)
		return
	}
	for _, tenantID := range tenants {
		s.Enqueue(JobLeaveSnapshot, tenantID, s.snapshotJob(tenantID))
	}
}
