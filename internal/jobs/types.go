// Package jobs implements Loom's background job scheduler: periodic and
// one-shot job registration, retry with exponential backoff,
// cancellation, and per-job health derivation from recent run history.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the terminal or in-flight state of a single job run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// TriggerSource records what caused a run to start.
type TriggerSource string

const (
	TriggerSchedule TriggerSource = "schedule"
	TriggerManual   TriggerSource = "manual"
	TriggerRetry    TriggerSource = "retry"
)

// Run is one execution record of a job.
type Run struct {
	RunID       uuid.UUID
	JobID       string
	Trigger     TriggerSource
	Status      RunStatus
	StartedAt   time.Time
	FinishedAt  *time.Time
	Error       string
	RetryCount  int
}

// Duration reports the run's elapsed time; zero if still running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Health is the derived state of a single job, or of the scheduler as a
// whole (the worst of its jobs' states).
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// healthRank orders Health values so the aggregate can take a max.
var healthRank = map[Health]int{
	HealthHealthy:   0,
	HealthDegraded:  1,
	HealthUnhealthy: 2,
}

// WorstHealth returns whichever of a, b ranks worse.
func WorstHealth(a, b Health) Health {
	if healthRank[b] > healthRank[a] {
		return b
	}
	return a
}

// DeriveHealth implements the health-derivation table from the last run
// and the count of consecutive failed runs ending with it (the last run
// itself included, so the count is 0 whenever the last run did not
// fail).
func DeriveHealth(last *Run, consecutiveFailures int) Health {
	if last == nil {
		return HealthHealthy
	}
	switch last.Status {
	case RunSucceeded, RunRunning, RunCancelled:
		return HealthHealthy
	case RunFailed:
		switch {
		case consecutiveFailures == 0:
			return HealthHealthy
		case consecutiveFailures <= 2:
			return HealthDegraded
		default:
			return HealthUnhealthy
		}
	default:
		return HealthHealthy
	}
}

// Schedule describes how a job is driven. Interval is zero for a
// one-shot job (the scheduler runs it once at Start and it is never
// re-ticked automatically — only manual triggers re-run it).
type Schedule struct {
	Interval time.Duration
}

// Definition is a job's static registration metadata, upserted into the
// JobRepository on scheduler start.
type Definition struct {
	ID          string
	Name        string
	Description string
	Schedule    Schedule
}

// Job is a unit of registered background work.
type Job interface {
	Definition() Definition
	Run(ctx context.Context) error
}
