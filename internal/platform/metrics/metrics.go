// Package metrics keeps in-process counters for the admin /metrics
// endpoint.
package metrics

import (
	"sync/atomic"
	"time"
)

// latencyBounds are the upper bounds of the request latency buckets. The
// last bucket is unbounded.
var latencyBounds = []time.Duration{
	5 * time.Millisecond,
	25 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	time.Second,
}

type Collector struct {
	requests    atomic.Uint64
	serverErrs  atomic.Uint64
	clientErrs  atomic.Uint64
	rateLimited atomic.Uint64
	durationMs  atomic.Uint64
	latency     [6]atomic.Uint64

	balanceComputations atomic.Uint64
	rejectedRecords     atomic.Uint64
	snapshotRuns        atomic.Uint64
	checkinsRejected    atomic.Uint64
}

func New() *Collector {
	return &Collector{}
}

// Record observes one served request.
func (c *Collector) Record(status int, duration time.Duration) {
	c.requests.Add(1)
	switch {
	case status >= 500:
		c.serverErrs.Add(1)
	case status == 429:
		c.rateLimited.Add(1)
		c.clientErrs.Add(1)
	case status >= 400:
		c.clientErrs.Add(1)
	}
	c.durationMs.Add(uint64(max(duration.Milliseconds(), 0)))
	c.latency[bucketFor(duration)].Add(1)
}

func bucketFor(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}

// RecordBalanceComputation counts one balance-sheet computation and the
// records it skipped.
func (c *Collector) RecordBalanceComputation(rejected int) {
	c.balanceComputations.Add(1)
	if rejected > 0 {
		c.rejectedRecords.Add(uint64(rejected))
	}
}

func (c *Collector) RecordSnapshotRun() {
	c.snapshotRuns.Add(1)
}

func (c *Collector) RecordCheckinRejected() {
	c.checkinsRejected.Add(1)
}

type Snapshot struct {
	RequestsTotal            uint64            `json:"requestsTotal"`
	ServerErrorsTotal        uint64            `json:"serverErrorsTotal"`
	ClientErrorsTotal        uint64            `json:"clientErrorsTotal"`
	RateLimitedTotal         uint64            `json:"rateLimitedTotal"`
	AvgDurationMs            float64           `json:"avgDurationMs"`
	LatencyBuckets           map[string]uint64 `json:"latencyBuckets"`
	BalanceComputationsTotal uint64            `json:"balanceComputationsTotal"`
	RejectedRecordsTotal     uint64            `json:"rejectedRecordsTotal"`
	SnapshotRunsTotal        uint64            `json:"snapshotRunsTotal"`
	CheckinsRejectedTotal    uint64            `json:"checkinsRejectedTotal"`
}

func (c *Collector) Snapshot() Snapshot {
	out := Snapshot{
		RequestsTotal:            c.requests.Load(),
		ServerErrorsTotal:        c.serverErrs.Load(),
		ClientErrorsTotal:        c.clientErrs.Load(),
		RateLimitedTotal:         c.rateLimited.Load(),
		LatencyBuckets:           make(map[string]uint64, len(c.latency)),
		BalanceComputationsTotal: c.balanceComputations.Load(),
		RejectedRecordsTotal:     c.rejectedRecords.Load(),
		SnapshotRunsTotal:        c.snapshotRuns.Load(),
		CheckinsRejectedTotal:    c.checkinsRejected.Load(),
	}
	if out.RequestsTotal > 0 {
		out.AvgDurationMs = float64(c.durationMs.Load()) / float64(out.RequestsTotal)
	}
	for i := range c.latency {
		label := "+Inf"
		if i < len(latencyBounds) {
			label = "le_" + latencyBounds[i].String()
		}
		out.LatencyBuckets[label] = c.latency[i].Load()
	}
	return out
}
