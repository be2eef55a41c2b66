package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/embedcache"
	"github.com/poiesic/docvec/progress"
	"github.com/poiesic/docvec/vectorstore"
)

// ChunkSource loads the ordered text chunks of a document. The extraction
// step itself (parsing, OCR) lives outside this system; workers only
// consume its output.
type ChunkSource interface {
	// LoadChunks returns the document's text chunks in original order.
	LoadChunks(ctx context.Context, filePath, fileType string) ([]string, error)
}

// Pool is a bounded pool of document workers. Each worker owns at most one
// job at a time and drives it to a terminal state; workers share no mutable
// state with each other beyond the queue and the embedding cache service's
// own synchronization.
type Pool struct {
	queue      *Queue
	embeddings *embedcache.Service
	store      *vectorstore.Store
	chunks     ChunkSource
	events     *progress.Broadcaster
	workers    *ants.Pool
	batchSize  int
	logger     *slog.Logger

	wg   sync.WaitGroup
	stop chan struct{}
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets a custom logger.
// Default is slog.Default().
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
	}
}

// NewPool creates a worker pool with the given concurrency.
// batchSize is the default number of chunks embedded per request when the
// job doesn't override it.
func NewPool(
	queue *Queue,
	embeddings *embedcache.Service,
	store *vectorstore.Store,
	chunks ChunkSource,
	events *progress.Broadcaster,
	concurrency int,
	batchSize int,
	opts ...PoolOption,
) (*Pool, error) {
	if queue == nil {
		return nil, ErrJobRepositoryRequired
	}
	if embeddings == nil {
		return nil, embedcache.ErrEmbedderRequired
	}
	if store == nil {
		return nil, vectorstore.ErrRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkSourceRequired
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if batchSize < 1 {
		batchSize = 1
	}

	workers, err := ants.NewPool(concurrency)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		queue:      queue,
		embeddings: embeddings,
		store:      store,
		chunks:     chunks,
		events:     events,
		workers:    workers,
		batchSize:  batchSize,
		logger:     slog.Default().With("component", "worker-pool"),
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start launches the dispatch loop. Ready jobs are handed to pool workers
// until ctx is cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case jobID := <-p.queue.Pending():
				p.wg.Add(1)
				err := p.workers.Submit(func() {
					defer p.wg.Done()
					p.run(ctx, jobID)
				})
				if err != nil {
					p.wg.Done()
					p.logger.Error("error submitting job to worker pool", "job", jobID, "err", err)
				}
			}
		}
	}()
}

// Stop stops dispatching, waits for in-flight jobs, and releases workers.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
	p.workers.Release()
}

// run drives one job to a terminal state. Errors never escape: any failure
// becomes a failed job with a recorded message, and a terminal event is
// emitted either way.
func (p *Pool) run(ctx context.Context, jobID string) {
	job, err := p.queue.Claim(ctx, jobID)
	if err != nil {
		if !errors.Is(err, ErrNotClaimable) {
			p.logger.Error("error claiming job", "job", jobID, "err", err)
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker panic", "job", job.Id, "panic", r)
			p.finishFailed(ctx, job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	summary, err := p.process(ctx, job)
	if err != nil {
		p.finishFailed(ctx, job, err.Error())
		return
	}

	if err := p.queue.Complete(ctx, job); err != nil {
		p.logger.Error("error finalizing job", "job", job.Id, "err", err)
	}
	p.logger.Info("job completed",
		"job", job.Id,
		"document", job.DocumentId,
		"chunks", summary.ChunksProcessed,
		"vectors", summary.VectorsStored,
		"took", summary.ProcessingTime)

	if p.events != nil {
		p.events.DocumentCompleted(job.UserId, job)
		p.emitQueueStatus(ctx, job.UserId)
	}
}

func (p *Pool) finishFailed(ctx context.Context, job *core.Job, errMsg string) {
	if err := p.queue.Fail(ctx, job, errMsg); err != nil {
		p.logger.Error("error recording job failure", "job", job.Id, "err", err)
	}
	p.logger.Error("job failed", "job", job.Id, "document", job.DocumentId, "reason", errMsg)

	if p.events != nil {
		p.events.DocumentFailed(job.UserId, job)
		p.emitQueueStatus(ctx, job.UserId)
	}
}

// process runs the ingestion pipeline for one claimed job.
func (p *Pool) process(ctx context.Context, job *core.Job) (*core.JobSummary, error) {
	started := time.Now()

	p.progressTo(ctx, job, 5, "initializing")

	// A missing source file is not transient; fail immediately, no retry.
	if _, err := os.Stat(job.FilePath); err != nil {
		return nil, fmt.Errorf("source file not reachable: %s", job.FilePath)
	}

	chunks, err := p.chunks.LoadChunks(ctx, job.FilePath, job.FileType)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	p.progressTo(ctx, job, 10, fmt.Sprintf("loaded %d chunks", len(chunks)))

	contentType := job.Options.ContentType
	if contentType == 0 {
		contentType = core.ContentTypeText
	}
	batchSize := job.Options.BatchSize
	if batchSize < 1 {
		batchSize = p.batchSize
	}

	// Embed in batches, advancing progress from 10 to 90 proportional to
	// chunks processed. Stored entries keep original chunk order through
	// their index regardless of embedding completion order.
	entries := make([]*core.VectorEntry, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		batch, err := p.embeddings.GetEmbeddingsBatch(ctx, chunks[start:end], batchSize)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}
		if !batch.Success() {
			first := batch.Failures[0]
			return nil, fmt.Errorf("embedding failed for %d of %d chunks (first at chunk %d): %v",
				batch.Failed, batch.Total, start+first.Index, first.Err)
		}

		for _, res := range batch.Results {
			idx := start + res.Index
			entries = append(entries, &core.VectorEntry{
				Id:         fmt.Sprintf("%s-%d", job.DocumentId, idx),
				DocumentId: job.DocumentId,
				SessionId:  job.SessionId,
				ChunkIndex: idx,
				Text:       chunks[idx],
				Vector:     core.NormalizeVector(res.Vector),
				Metadata:   map[string]string{"fileType": job.FileType},
			})
		}

		pct := 10 + 80*end/len(chunks)
		p.progressTo(ctx, job, pct, fmt.Sprintf("embedded %d/%d chunks", end, len(chunks)))
	}

	p.progressTo(ctx, job, 95, "storing vectors")
	result, err := p.store.AddEntries(ctx, job.UserId, contentType, entries)
	if err != nil {
		return nil, fmt.Errorf("storing vectors: %w", err)
	}

	return &core.JobSummary{
		JobId:           job.Id,
		DocumentId:      job.DocumentId,
		ChunksProcessed: len(chunks),
		VectorsStored:   result.Stored,
		ProcessingTime:  time.Since(started),
	}, nil
}

func (p *Pool) progressTo(ctx context.Context, job *core.Job, percent int, message string) {
	if err := p.queue.UpdateProgress(ctx, job, percent, message); err != nil {
		p.logger.Warn("error recording progress", "job", job.Id, "err", err)
	}
	if p.events != nil {
		p.events.DocumentProgress(job.UserId, job)
	}
}

func (p *Pool) emitQueueStatus(ctx context.Context, userID string) {
	counts, err := p.queue.Status(ctx)
	if err != nil {
		p.logger.Warn("error reading queue status", "err", err)
		return
	}
	p.events.QueueStatus(userID, counts)
}
