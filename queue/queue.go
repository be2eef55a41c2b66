package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/progress"
	"github.com/poiesic/docvec/storage"
)

// pendingBuffer bounds how many jobs may wait for a worker before Enqueue
// starts rejecting.
const pendingBuffer = 1024

// EnqueueRequest describes a document-processing job to enqueue.
type EnqueueRequest struct {
	DocumentId string
	UserId     string
	SessionId  string // Optional
	FilePath   string
	FileType   string
	Options    core.JobOptions
}

// Queue is a durable job queue. Jobs are persisted through the job
// repository so they survive restarts; dispatch order is tracked in memory.
// Only one worker may own a job at a time, enforced by Claim.
type Queue struct {
	jobs          storage.JobRepository
	events        *progress.Broadcaster
	stallInterval time.Duration
	retention     int
	logger        *slog.Logger

	mu          sync.Mutex
	claimed     map[string]bool
	pending     chan string
	pendingSize int

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger == nil {
			logger = slog.Default()
		}
		q.logger = logger
	}
}

// WithBroadcaster attaches a progress broadcaster so the stall sweeper can
// emit failure events. Optional; the queue works without one.
func WithBroadcaster(b *progress.Broadcaster) Option {
	return func(q *Queue) {
		q.events = b
	}
}

// WithPendingBuffer bounds how many jobs may wait for a worker before
// Enqueue starts rejecting. Default is 1024.
func WithPendingBuffer(size int) Option {
	return func(q *Queue) {
		if size > 0 {
			q.pendingSize = size
		}
	}
}

// NewQueue creates a durable job queue.
// stallInterval is how long an active job may go without a progress update
// before it is considered stalled; retention bounds the trailing window of
// terminal jobs kept for audit.
func NewQueue(jobs storage.JobRepository, stallInterval time.Duration, retention int, opts ...Option) (*Queue, error) {
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}
	if stallInterval <= 0 {
		return nil, ErrInvalidStallInterval
	}

	q := &Queue{
		jobs:          jobs,
		stallInterval: stallInterval,
		retention:     retention,
		logger:        slog.Default().With("component", "queue"),
		claimed:       make(map[string]bool),
		pendingSize:   pendingBuffer,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.pending = make(chan string, q.pendingSize)
	return q, nil
}

// Enqueue persists a new queued job and makes it available to workers.
// Returns the queue-assigned job id.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	now := time.Now().UTC()
	job := &core.Job{
		Id:         uuid.NewString(),
		DocumentId: req.DocumentId,
		UserId:     req.UserId,
		SessionId:  req.SessionId,
		FilePath:   req.FilePath,
		FileType:   req.FileType,
		Options:    req.Options,
		Status:     core.JobStatusQueued,
		Message:    "queued",
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
	if err := core.ValidateJob(job); err != nil {
		return "", err
	}

	if err := q.jobs.PutJob(ctx, job); err != nil {
		return "", err
	}

	select {
	case q.pending <- job.Id:
	default:
		// Undo the persisted record so a rejected enqueue doesn't come
		// back to life through Recover after a restart.
		if err := q.jobs.DeleteJob(ctx, job.Id); err != nil {
			q.logger.Error("error deleting rejected job", "job", job.Id, "err", err)
		}
		return "", ErrQueueFull
	}

	q.logger.Info("job enqueued", "job", job.Id, "document", job.DocumentId)
	return job.Id, nil
}

// Pending returns the channel workers receive ready job ids from.
func (q *Queue) Pending() <-chan string {
	return q.pending
}

// Claim transitions a queued job to active on behalf of one worker.
// A job already claimed, or no longer queued, yields ErrNotClaimable.
func (q *Queue) Claim(ctx context.Context, jobID string) (*core.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.claimed[jobID] {
		return nil, ErrNotClaimable
	}

	job, err := q.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != core.JobStatusQueued {
		return nil, ErrNotClaimable
	}

	job.Status = core.JobStatusActive
	job.UpdatedAt = time.Now().UTC()
	if err := q.jobs.PutJob(ctx, job); err != nil {
		return nil, err
	}

	q.claimed[jobID] = true
	return job, nil
}

// UpdateProgress records a progress update for an active job. Only the
// owning worker calls this; the updated timestamp feeds stall detection.
func (q *Queue) UpdateProgress(ctx context.Context, job *core.Job, percent int, message string) error {
	job.Progress = percent
	job.Message = message
	job.UpdatedAt = time.Now().UTC()
	return q.jobs.PutJob(ctx, job)
}

// Complete finalizes a job as completed and trims the audit window.
func (q *Queue) Complete(ctx context.Context, job *core.Job) error {
	return q.finalize(ctx, job, core.JobStatusCompleted, "completed", "")
}

// Fail finalizes a job as failed, recording the error message.
func (q *Queue) Fail(ctx context.Context, job *core.Job, errMsg string) error {
	return q.finalize(ctx, job, core.JobStatusFailed, "Processing failed: "+errMsg, errMsg)
}

func (q *Queue) finalize(ctx context.Context, job *core.Job, status core.JobStatus, message, errMsg string) error {
	q.mu.Lock()
	delete(q.claimed, job.Id)
	q.mu.Unlock()

	now := time.Now().UTC()
	job.Status = status
	job.Message = message
	job.Error = errMsg
	if status == core.JobStatusCompleted {
		job.Progress = 100
	}
	job.UpdatedAt = now
	job.FinishedAt = now

	if err := q.jobs.PutJob(ctx, job); err != nil {
		return err
	}

	if q.retention > 0 {
		if evicted, err := q.jobs.EvictTerminal(ctx, q.retention); err != nil {
			q.logger.Warn("error evicting old terminal jobs", "err", err)
		} else if evicted > 0 {
			q.logger.Debug("evicted old terminal jobs", "count", evicted)
		}
	}
	return nil
}

// GetJob retrieves the authoritative state of a job.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	return q.jobs.GetJob(ctx, jobID)
}

// Status returns the number of jobs per status.
func (q *Queue) Status(ctx context.Context) (map[core.JobStatus]int, error) {
	return q.jobs.CountByStatus(ctx)
}

// Recover re-queues jobs left active or stalled by a previous run.
// Execution is at-least-once: an interrupted job runs again from the start,
// which is safe because entry writes are idempotent.
func (q *Queue) Recover(ctx context.Context) error {
	for _, status := range []core.JobStatus{core.JobStatusActive, core.JobStatusStalled, core.JobStatusQueued} {
		jobs, err := q.jobs.JobsByStatus(ctx, status)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			if status != core.JobStatusQueued {
				job.Status = core.JobStatusQueued
				job.Message = "re-queued after restart"
				job.UpdatedAt = time.Now().UTC()
				if err := q.jobs.PutJob(ctx, job); err != nil {
					return err
				}
			}
			select {
			case q.pending <- job.Id:
			default:
				q.logger.Warn("pending buffer full during recovery", "job", job.Id)
			}
		}
	}
	return nil
}

// StartSweeper launches the stall detector. It checks active jobs at half
// the stall interval and stops when ctx is cancelled.
func (q *Queue) StartSweeper(ctx context.Context) {
	q.sweepStop = make(chan struct{})
	q.sweepDone = make(chan struct{})

	go func() {
		defer close(q.sweepDone)
		ticker := time.NewTicker(q.stallInterval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.sweepStop:
				return
			case <-ticker.C:
				if err := q.SweepStalled(ctx); err != nil {
					q.logger.Error("stall sweep failed", "err", err)
				}
			}
		}
	}()
}

// StopSweeper stops the stall detector and waits for it to exit.
func (q *Queue) StopSweeper() {
	if q.sweepStop == nil {
		return
	}
	close(q.sweepStop)
	<-q.sweepDone
	q.sweepStop = nil
}

// SweepStalled marks active jobs without recent progress as stalled.
// A stalled job is retried exactly once; a second stall forces it to
// failed so no job remains active forever.
func (q *Queue) SweepStalled(ctx context.Context) error {
	active, err := q.jobs.JobsByStatus(ctx, core.JobStatusActive)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-q.stallInterval)
	for _, job := range active {
		if job.UpdatedAt.After(cutoff) {
			continue
		}

		q.mu.Lock()
		delete(q.claimed, job.Id)
		q.mu.Unlock()

		job.Status = core.JobStatusStalled
		job.UpdatedAt = time.Now().UTC()
		if err := q.jobs.PutJob(ctx, job); err != nil {
			return err
		}

		if job.RetryCount < 1 {
			q.logger.Warn("job stalled, retrying", "job", job.Id)
			job.RetryCount++
			job.Status = core.JobStatusQueued
			job.Message = "stalled, retrying"
			job.UpdatedAt = time.Now().UTC()
			if err := q.jobs.PutJob(ctx, job); err != nil {
				return err
			}
			select {
			case q.pending <- job.Id:
			default:
				q.logger.Warn("pending buffer full, stalled job waits for next sweep", "job", job.Id)
			}
			continue
		}

		q.logger.Error("job stalled after retry, failing", "job", job.Id)
		if err := q.Fail(ctx, job, "job stalled: no progress within "+q.stallInterval.String()); err != nil {
			return err
		}
		if q.events != nil {
			q.events.DocumentFailed(job.UserId, job)
		}
	}
	return nil
}
