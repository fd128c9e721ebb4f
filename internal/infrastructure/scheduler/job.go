package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Names of the sync jobs
const (
	JobFetchOrders  = "fetch-orders"
	JobPollTracking = "poll-tracking"
	JobImportFeed   = "import-feed"
)

// RunStatus represents the outcome of a job run
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusPartial RunStatus = "PARTIAL"
	RunStatusFailed  RunStatus = "FAILED"
)

// Result counts what a run did. Detail carries the service-specific summary.
type Result struct {
	Processed int
	Failed    int
	Skipped   int
	Detail    any
}

// Job is one periodic sync task
type Job interface {
	Name() string
	Run(ctx context.Context) (Result, error)
}

// JobRun records one execution of a Job
type JobRun struct {
	ID          uuid.UUID
	Job         string
	Status      RunStatus
	Error       string
	Attempt     int
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      Result
}

func newJobRun(job string, attempt int) *JobRun {
	return &JobRun{
		ID:        uuid.New(),
		Job:       job,
		Status:    RunStatusRunning,
		Attempt:   attempt,
		StartedAt: time.Now(),
	}
}

// Duration returns how long the run took, or has taken so far
func (r *JobRun) Duration() time.Duration {
	if r.CompletedAt == nil {
		return time.Since(r.StartedAt)
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// complete derives the status from the result counts: any failure with
// some progress is PARTIAL, failures only is FAILED
func (r *JobRun) complete(res Result) {
	now := time.Now()
	r.Result = res
	r.CompletedAt = &now

	switch {
	case res.Failed == 0:
		r.Status = RunStatusSuccess
	case res.Processed > 0:
		r.Status = RunStatusPartial
	default:
		r.Status = RunStatusFailed
	}
}

func (r *JobRun) fail(res Result, err error) {
	now := time.Now()
	r.Result = res
	r.Status = RunStatusFailed
	r.CompletedAt = &now
	r.Error = err.Error()
}
