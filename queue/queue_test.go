package queue

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
	"github.com/poiesic/docvec/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQueue(t *testing.T, stallInterval time.Duration, retention int) (*Queue, *badger.JobRepository) {
	t.Helper()
	_, jobRepo, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	q, err := NewQueue(jobRepo, stallInterval, retention)
	require.NoError(t, err)
	return q, jobRepo
}

func enqueueRequest(docID string) EnqueueRequest {
	return EnqueueRequest{
		DocumentId: docID,
		UserId:     "user-1",
		SessionId:  "session-1",
		FilePath:   "/tmp/doc.txt",
		FileType:   "text",
	}
}

func TestNewQueue_Validation(t *testing.T) {
	_, err := NewQueue(nil, time.Second, 10)
	assert.ErrorIs(t, err, ErrJobRepositoryRequired)

	_, jobRepo, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	_, err = NewQueue(jobRepo, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidStallInterval)
}

func TestEnqueue(t *testing.T) {
	q, _ := setupQueue(t, time.Minute, 10)
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, enqueueRequest("doc-1"))
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job, err := q.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusQueued, job.Status)
	assert.Equal(t, "doc-1", job.DocumentId)
	assert.False(t, job.EnqueuedAt.IsZero())

	select {
	case got := <-q.Pending():
		assert.Equal(t, jobID, got)
	default:
		t.Fatal("enqueued job id should be on the pending channel")
	}
}

func TestEnqueue_FullPendingBuffer(t *testing.T) {
	_, jobRepo, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	q, err := NewQueue(jobRepo, time.Minute, 10, WithPendingBuffer(1))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = q.Enqueue(ctx, enqueueRequest("doc-1"))
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, enqueueRequest("doc-2"))
	assert.ErrorIs(t, err, ErrQueueFull)

	// The rejected job must not linger in the store, or it would rise from
	// the dead through Recover on the next restart.
	queued, err := jobRepo.JobsByStatus(ctx, core.JobStatusQueued)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "doc-1", queued[0].DocumentId)
}

func TestEnqueue_Invalid(t *testing.T) {
	q, _ := setupQueue(t, time.Minute, 10)

	req := enqueueRequest("doc-1")
	req.UserId = ""
	_, err := q.Enqueue(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrInvalidJob)
}

func TestClaim(t *testing.T) {
	q, _ := setupQueue(t, time.Minute, 10)
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, enqueueRequest("doc-1"))
	require.NoError(t, err)

	job, err := q.Claim(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusActive, job.Status)

	// Same job cannot be claimed twice.
	_, err = q.Claim(ctx, jobID)
	assert.ErrorIs(t, err, ErrNotClaimable)
}

func TestClaim_MissingJob(t *testing.T) {
	q, _ := setupQueue(t, time.Minute, 10)

	_, err := q.Claim(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCompleteAndFail(t *testing.T) {
	q, _ := setupQueue(t, time.Minute, 10)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, enqueueRequest("doc-1"))
	require.NoError(t, err)
	job1, err := q.Claim(ctx, id1)
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, job1))
	got, err := q.GetJob(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.False(t, got.FinishedAt.IsZero())

	id2, err := q.Enqueue(ctx, enqueueRequest("doc-2"))
	require.NoError(t, err)
	job2, err := q.Claim(ctx, id2)
	require.NoError(t, err)

	require.NoError(t, q.Fail(ctx, job2, "boom"))
	got, err = q.GetJob(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
	assert.Equal(t, "Processing failed: boom", got.Message)
}

func TestUpdateProgress(t *testing.T) {
	q, _ := setupQueue(t, time.Minute, 10)
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, enqueueRequest("doc-1"))
	require.NoError(t, err)
	job, err := q.Claim(ctx, jobID)
	require.NoError(t, err)

	require.NoError(t, q.UpdateProgress(ctx, job, 40, "embedding chunks"))

	got, err := q.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, "embedding chunks", got.Message)
}

func TestStatus(t *testing.T) {
	q, _ := setupQueue(t, time.Minute, 10)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, enqueueRequest("doc-1"))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, enqueueRequest("doc-2"))
	require.NoError(t, err)

	_, err = q.Claim(ctx, id1)
	require.NoError(t, err)

	counts, err := q.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[core.JobStatusQueued])
	assert.Equal(t, 1, counts[core.JobStatusActive])
}

func TestRetentionEvictsOldTerminalJobs(t *testing.T) {
	q, _ := setupQueue(t, time.Minute, 2)
	ctx := context.Background()

	var ids []string
	for _, doc := range []string{"doc-1", "doc-2", "doc-3"} {
		id, err := q.Enqueue(ctx, enqueueRequest(doc))
		require.NoError(t, err)
		job, err := q.Claim(ctx, id)
		require.NoError(t, err)
		require.NoError(t, q.Complete(ctx, job))
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond) // Distinct finished-at ordering
	}

	_, err := q.GetJob(ctx, ids[0])
	assert.ErrorIs(t, err, storage.ErrNotFound, "oldest terminal job should be evicted")

	for _, id := range ids[1:] {
		_, err := q.GetJob(ctx, id)
		assert.NoError(t, err)
	}
}

func TestSweepStalled_RetriesThenFails(t *testing.T) {
	q, _ := setupQueue(t, 20*time.Millisecond, 10)
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, enqueueRequest("doc-1"))
	require.NoError(t, err)
	<-q.Pending()

	_, err = q.Claim(ctx, jobID)
	require.NoError(t, err)

	// First stall: retried.
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, q.SweepStalled(ctx))

	job, err := q.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusQueued, job.Status)
	assert.Equal(t, 1, job.RetryCount)

	select {
	case got := <-q.Pending():
		assert.Equal(t, jobID, got)
	default:
		t.Fatal("retried job should be re-dispatched")
	}

	// Second stall: forced to failed.
	_, err = q.Claim(ctx, jobID)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, q.SweepStalled(ctx))

	job, err = q.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "stalled")
	assert.False(t, job.FinishedAt.IsZero())
}

func TestSweepStalled_LeavesFreshJobsAlone(t *testing.T) {
	q, _ := setupQueue(t, time.Minute, 10)
	ctx := context.Background()

	jobID, err := q.Enqueue(ctx, enqueueRequest("doc-1"))
	require.NoError(t, err)
	_, err = q.Claim(ctx, jobID)
	require.NoError(t, err)

	require.NoError(t, q.SweepStalled(ctx))

	job, err := q.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusActive, job.Status)
}

func TestRecover(t *testing.T) {
	_, jobRepo, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	// Simulate a previous run leaving jobs behind.
	now := time.Now().UTC()
	for i, status := range []core.JobStatus{core.JobStatusActive, core.JobStatusStalled, core.JobStatusQueued} {
		require.NoError(t, jobRepo.PutJob(context.Background(), &core.Job{
			Id:         string(rune('a' + i)),
			DocumentId: "doc",
			UserId:     "user-1",
			FilePath:   "/tmp/doc.txt",
			FileType:   "text",
			Status:     status,
			EnqueuedAt: now,
			UpdatedAt:  now,
		}))
	}

	q, err := NewQueue(jobRepo, time.Minute, 10)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.Recover(ctx))

	counts, err := q.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[core.JobStatusQueued], "all interrupted jobs should be re-queued")
	assert.Zero(t, counts[core.JobStatusActive])
	assert.Zero(t, counts[core.JobStatusStalled])

	dispatched := 0
	for {
		select {
		case <-q.Pending():
			dispatched++
			continue
		default:
		}
		break
	}
	assert.Equal(t, 3, dispatched)
}
