package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/hsne-clustering-service/pkg/clustering"
)

// runFunc computes the labels of every sub-scale for a job.
type runFunc func(ctx context.Context) (*clustering.ScaleLabels, error)

type jobEntry struct {
	job    Job
	cancel context.CancelFunc
	done   chan struct{}
}

// jobRunner runs clustering jobs in the background with a bounded number
// of jobs in flight. Finished jobs are forgotten after ttl.
type jobRunner struct {
	mu     sync.RWMutex
	jobs   map[string]*jobEntry
	slots  chan struct{}
	ttl    time.Duration
	logger zerolog.Logger

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func newJobRunner(maxJobs int, ttl time.Duration, logger zerolog.Logger) *jobRunner {
	if maxJobs < 1 {
		maxJobs = 1
	}
	base, stop := context.WithCancel(context.Background())
	return &jobRunner{
		jobs:   make(map[string]*jobEntry),
		slots:  make(chan struct{}, maxJobs),
		ttl:    ttl,
		logger: logger,
		base:   base,
		stop:   stop,
	}
}

// submit queues run and returns the queued job.
func (r *jobRunner) submit(hierarchyID string, method clustering.Method, run runFunc) Job {
	r.prune()

	ctx, cancel := context.WithCancel(r.base)
	now := time.Now().UTC()
	e := &jobEntry{
		job: Job{
			ID:          uuid.NewString(),
			HierarchyID: hierarchyID,
			Method:      string(method),
			Status:      JobStatusQueued,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.jobs[e.job.ID] = e
	snapshot := e.job
	r.mu.Unlock()

	r.logger.Info().
		Str("job_id", snapshot.ID).
		Str("hierarchy_id", hierarchyID).
		Str("method", string(method)).
		Msg("Job submitted")

	r.wg.Add(1)
	go r.process(ctx, e, run)
	return snapshot
}

func (r *jobRunner) process(ctx context.Context, e *jobEntry, run runFunc) {
	defer r.wg.Done()
	defer close(e.done)
	defer e.cancel()

	select {
	case r.slots <- struct{}{}:
		defer func() { <-r.slots }()
	case <-ctx.Done():
		r.finish(e, nil, ctx.Err())
		return
	}

	if !r.transition(e, JobStatusRunning) {
		return
	}
	start := time.Now()
	labels, err := run(ctx)
	r.finish(e, labels, err)

	r.logger.Info().
		Str("job_id", e.job.ID).
		Err(err).
		Dur("elapsed", time.Since(start)).
		Msg("Job finished")
}

// transition moves a job to status unless it already finished.
func (r *jobRunner) transition(e *jobEntry, status JobStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.job.Status.finished() {
		return false
	}
	e.job.Status = status
	e.job.UpdatedAt = time.Now().UTC()
	return true
}

func (r *jobRunner) finish(e *jobEntry, labels *clustering.ScaleLabels, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.job.Status.finished() {
		return
	}
	switch {
	case errors.Is(err, context.Canceled):
		e.job.Status = JobStatusCancelled
	case err != nil:
		e.job.Status = JobStatusFailed
		e.job.Error = err.Error()
	default:
		e.job.Status = JobStatusCompleted
		e.job.Labels = labels.Matrix
	}
	e.job.UpdatedAt = time.Now().UTC()
}

func (r *jobRunner) get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("job not found: %s", id)
	}
	return e.job, nil
}

// cancel stops a queued or running job. Cancelling a finished job is a no-op.
func (r *jobRunner) cancel(id string) (Job, error) {
	r.mu.Lock()
	e, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return Job{}, fmt.Errorf("job not found: %s", id)
	}
	if !e.job.Status.finished() {
		e.job.Status = JobStatusCancelled
		e.job.UpdatedAt = time.Now().UTC()
	}
	snapshot := e.job
	r.mu.Unlock()

	e.cancel()
	r.logger.Info().Str("job_id", id).Msg("Job cancelled")
	return snapshot, nil
}

// wait blocks until the job finishes or ctx is done.
func (r *jobRunner) wait(ctx context.Context, id string) (Job, error) {
	r.mu.RLock()
	e, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return Job{}, fmt.Errorf("job not found: %s", id)
	}

	select {
	case <-e.done:
		return r.get(id)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (r *jobRunner) prune() {
	if r.ttl <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.jobs {
		if e.job.Status.finished() && e.job.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
}

func (r *jobRunner) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// close cancels every job and waits for them to return.
func (r *jobRunner) close() {
	r.stop()
	r.wg.Wait()
}
