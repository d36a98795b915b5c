package jobs

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const maxRetries = 3

// backoffDelay implements base · factor^(n-1) capped at 60s, n 1-based.
func backoffDelay(attempt int) time.Duration {
	seconds := math.Pow(2, float64(attempt-1))
	if seconds > 60 {
		seconds = 60
	}
	return time.Duration(seconds * float64(time.Second))
}

// jobState tracks the cancellation token and run bookkeeping the
// scheduler keeps per registered job.
type jobState struct {
	job     Job
	cancel  context.CancelFunc
	trigger chan TriggerSource

	mu                  sync.Mutex
	lastRun             *Run
	consecutiveFailures int
}

// Scheduler drives registered jobs on their configured interval,
// supports manual triggering and cancellation, and derives per-job and
// aggregate health from recent run history.
type Scheduler struct {
	repo  Repository
	clock clockwork.Clock
	log   *log.Entry

	mu    sync.Mutex
	jobs  map[string]*jobState

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Scheduler. Call Register for each job before Start.
func New(repo Repository, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		repo:  repo,
		clock: clock,
		log:   log.WithField("component", "jobs"),
		jobs:  make(map[string]*jobState),
	}
}

// Register adds a job to the scheduler. Not safe to call after Start.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Definition().ID] = &jobState{
		job:     job,
		trigger: make(chan TriggerSource, 1),
	}
}

// Start upserts every registered job's definition and begins driving
// periodic jobs. It returns once every job's goroutine has been
// launched; it does not block for their completion — call Wait for
// that.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.group, s.ctx = errgroup.WithContext(s.ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, st := range s.jobs {
		def := st.job.Definition()
		if err := s.repo.UpsertDefinition(s.ctx, def); err != nil {
			return trace.Wrap(err, "upserting job definition %q", id)
		}

		jobCtx, cancel := context.WithCancel(s.ctx)
		st.cancel = cancel

		state := st
		s.group.Go(func() error {
			s.driveJob(jobCtx, state)
			return nil
		})
	}
	return nil
}

// driveJob runs state.job on its configured interval (if any), honoring
// manual triggers and the job's own cancellation token, until ctx is
// done.
func (s *Scheduler) driveJob(ctx context.Context, state *jobState) {
	def := state.job.Definition()

	// One-shot jobs (zero interval) fire exactly once at startup, then
	// only in response to a manual trigger.
	s.executeWithRetry(ctx, state, TriggerSchedule)

	if def.Schedule.Interval <= 0 {
		s.waitForManualTriggers(ctx, state)
		return
	}

	ticker := s.clock.NewTicker(def.Schedule.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.executeWithRetry(ctx, state, TriggerSchedule)
		case trigger := <-state.trigger:
			s.executeWithRetry(ctx, state, trigger)
		}
	}
}

func (s *Scheduler) waitForManualTriggers(ctx context.Context, state *jobState) {
	for {
		select {
		case <-ctx.Done():
			return
		case trigger := <-state.trigger:
			s.executeWithRetry(ctx, state, trigger)
		}
	}
}

// executeWithRetry runs state.job once, retrying on a *RetryableError up
// to maxRetries times with exponential backoff, recording every attempt
// as its own Run.
func (s *Scheduler) executeWithRetry(ctx context.Context, state *jobState, trigger TriggerSource) {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return
		}
		run := s.executeOnce(ctx, state, trigger, attempt-1)

		state.mu.Lock()
		runCopy := run.Run
		state.lastRun = &runCopy
		if run.Status == RunFailed {
			state.consecutiveFailures++
		} else {
			state.consecutiveFailures = 0
		}
		state.mu.Unlock()

		if run.Status != RunFailed {
			return
		}

		var retryErr *RetryableError
		if !errors.As(run.errForRetryCheck, &retryErr) || attempt > maxRetries {
			return
		}

		delay := backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(delay):
		}
		trigger = TriggerRetry
	}
}

// executeOnce performs a single run, recording its start and finish via
// Repository.
func (s *Scheduler) executeOnce(ctx context.Context, state *jobState, trigger TriggerSource, retryCount int) runResult {
	def := state.job.Definition()
	run := Run{
		RunID:      uuid.New(),
		JobID:      def.ID,
		Trigger:    trigger,
		Status:     RunRunning,
		StartedAt:  s.clock.Now().UTC(),
		RetryCount: retryCount,
	}
	if err := s.repo.RecordRunStart(ctx, run); err != nil {
		s.log.WithError(err).WithField("job", def.ID).Warn("failed to record run start")
	}

	err := state.job.Run(ctx)

	finished := s.clock.Now().UTC()
	run.FinishedAt = &finished

	switch {
	case err == nil:
		run.Status = RunSucceeded
	case errors.Is(err, ErrCancelled):
		run.Status = RunCancelled
		run.Error = err.Error()
	default:
		run.Status = RunFailed
		run.Error = err.Error()
	}

	if recErr := s.repo.RecordRunFinish(ctx, run); recErr != nil {
		s.log.WithError(recErr).WithField("job", def.ID).Warn("failed to record run finish")
	}
	return runResult{Run: run, errForRetryCheck: err}
}

// runResult pairs a persisted Run with the raw error that produced it,
// since Run.Error is already stringified and errors.As needs the
// original value to detect *RetryableError.
type runResult struct {
	Run
	errForRetryCheck error
}

// Trigger manually runs job id immediately, outside its schedule.
func (s *Scheduler) Trigger(id string) error {
	s.mu.Lock()
	state, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return trace.Wrap(&NotFoundError{ID: id})
	}
	select {
	case state.trigger <- TriggerManual:
	default:
		// A trigger is already pending; coalescing is fine since the job
		// will run again momentarily.
	}
	return nil
}

// Cancel cancels job id's running or next execution.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	state, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return trace.Wrap(&NotFoundError{ID: id})
	}
	if state.cancel != nil {
		state.cancel()
	}
	return nil
}

// Shutdown broadcasts cancellation to every job and waits for their
// goroutines to exit.
func (s *Scheduler) Shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.group == nil {
		return nil
	}
	return s.group.Wait()
}

// JobHealth reports the derived health of job id.
func (s *Scheduler) JobHealth(ctx context.Context, id string) (Health, error) {
	s.mu.Lock()
	state, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return "", trace.Wrap(&NotFoundError{ID: id})
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return DeriveHealth(state.lastRun, state.consecutiveFailures), nil
}

// AggregateHealth returns the worst health across every registered job.
func (s *Scheduler) AggregateHealth(ctx context.Context) Health {
	s.mu.Lock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	worst := HealthHealthy
	for _, id := range ids {
		h, err := s.JobHealth(ctx, id)
		if err != nil {
			continue
		}
		worst = WorstHealth(worst, h)
	}
	return worst
}
