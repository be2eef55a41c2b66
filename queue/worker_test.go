package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/docvec/ai/mock"
	"github.com/poiesic/docvec/config"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/embedcache"
	"github.com/poiesic/docvec/storage/badger"
	"github.com/poiesic/docvec/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubChunks serves fixed chunks regardless of the file contents. The file
// must still exist because workers verify reachability before loading.
type stubChunks struct {
	chunks []string
	err    error
}

func (s *stubChunks) LoadChunks(ctx context.Context, filePath, fileType string) ([]string, error) {
	return s.chunks, s.err
}

type pipelineFixture struct {
	queue    *Queue
	pool     *Pool
	store    *vectorstore.Store
	embedder *mock.MockEmbedder
	filePath string
}

func setupPipeline(t *testing.T, chunks ChunkSource) *pipelineFixture {
	t.Helper()

	vectorRepo, jobRepo, cacheStore, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	embedder := mock.NewMockEmbedder()
	cfg := config.New(
		config.WithEmbeddingModel("test-model"),
		config.WithBatchDelay(0),
	)

	embeddings, err := embedcache.NewService(cacheStore, embedder, cfg)
	require.NoError(t, err)
	t.Cleanup(embeddings.Release)

	store, err := vectorstore.NewStore(vectorRepo)
	require.NoError(t, err)

	q, err := NewQueue(jobRepo, time.Minute, 10)
	require.NoError(t, err)

	pool, err := NewPool(q, embeddings, store, chunks, nil, 2, 10)
	require.NoError(t, err)
	t.Cleanup(pool.Stop)

	filePath := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("placeholder"), 0644))

	return &pipelineFixture{
		queue:    q,
		pool:     pool,
		store:    store,
		embedder: embedder,
		filePath: filePath,
	}
}

func (f *pipelineFixture) enqueueAndWait(t *testing.T, ctx context.Context, req EnqueueRequest) *core.Job {
	t.Helper()

	jobID, err := f.queue.Enqueue(ctx, req)
	require.NoError(t, err)

	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("job did not reach a terminal state in time")
		case <-time.After(10 * time.Millisecond):
		}
		job, err := f.queue.GetJob(ctx, jobID)
		require.NoError(t, err)
		if job.Status.Terminal() {
			return job
		}
	}
}

func TestPoolProcessesJob(t *testing.T) {
	chunks := &stubChunks{chunks: []string{"first chunk", "second chunk", "third chunk"}}
	f := setupPipeline(t, chunks)

	ctx := context.Background()
	f.pool.Start(ctx)

	job := f.enqueueAndWait(t, ctx, EnqueueRequest{
		DocumentId: "doc-1",
		UserId:     "user-1",
		SessionId:  "session-1",
		FilePath:   f.filePath,
		FileType:   "text",
	})

	assert.Equal(t, core.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)

	// One entry per chunk, preserving original order through ChunkIndex.
	hits, err := f.store.Search(ctx, mock.DeterministicVector("first chunk", 384),
		vectorstore.SearchFilters{UserId: "user-1"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "doc-1-0", hits[0].Entry.Id)
	assert.Equal(t, 0, hits[0].Entry.ChunkIndex)
	assert.Equal(t, "first chunk", hits[0].Entry.Text)
	assert.Equal(t, "session-1", hits[0].Entry.SessionId)
	assert.Equal(t, "text", hits[0].Entry.Metadata["fileType"])
}

func TestPoolDeduplicatesRepeatedChunks(t *testing.T) {
	// The same boilerplate chunk appears in both documents; the second
	// document's copy must be served from cache.
	chunks := &stubChunks{chunks: []string{"Copyright 2024 Example Corp", "unique content"}}
	f := setupPipeline(t, chunks)

	ctx := context.Background()
	f.pool.Start(ctx)

	job1 := f.enqueueAndWait(t, ctx, EnqueueRequest{
		DocumentId: "doc-1", UserId: "user-1", FilePath: f.filePath, FileType: "text",
	})
	require.Equal(t, core.JobStatusCompleted, job1.Status)

	chunks.chunks = []string{"Copyright 2024 Example Corp", "other unique content"}
	job2 := f.enqueueAndWait(t, ctx, EnqueueRequest{
		DocumentId: "doc-2", UserId: "user-1", FilePath: f.filePath, FileType: "text",
	})
	require.Equal(t, core.JobStatusCompleted, job2.Status)

	assert.Equal(t, 1, f.embedder.TextCallCount("Copyright 2024 Example Corp"),
		"repeated chunk should cost exactly one inference call")

	// Both documents' entries exist despite the shared embedding.
	hits, err := f.store.Search(ctx, mock.DeterministicVector("Copyright 2024 Example Corp", 384),
		vectorstore.SearchFilters{UserId: "user-1"}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 4)
}

func TestPoolFailsJobOnMissingFile(t *testing.T) {
	f := setupPipeline(t, &stubChunks{chunks: []string{"never loaded"}})

	ctx := context.Background()
	f.pool.Start(ctx)

	job := f.enqueueAndWait(t, ctx, EnqueueRequest{
		DocumentId: "doc-1",
		UserId:     "user-1",
		FilePath:   filepath.Join(t.TempDir(), "missing.txt"),
		FileType:   "text",
	})

	assert.Equal(t, core.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "not reachable")
}

func TestPoolFailsJobOnChunkError(t *testing.T) {
	f := setupPipeline(t, &stubChunks{err: errors.New("parse error")})

	ctx := context.Background()
	f.pool.Start(ctx)

	job := f.enqueueAndWait(t, ctx, EnqueueRequest{
		DocumentId: "doc-1", UserId: "user-1", FilePath: f.filePath, FileType: "text",
	})

	assert.Equal(t, core.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "parse error")
}

func TestPoolFailsJobOnEmptyDocument(t *testing.T) {
	f := setupPipeline(t, &stubChunks{chunks: nil})

	ctx := context.Background()
	f.pool.Start(ctx)

	job := f.enqueueAndWait(t, ctx, EnqueueRequest{
		DocumentId: "doc-1", UserId: "user-1", FilePath: f.filePath, FileType: "text",
	})

	assert.Equal(t, core.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, ErrNoChunks.Error())
}

func TestPoolFailsJobOnEmbeddingError(t *testing.T) {
	f := setupPipeline(t, &stubChunks{chunks: []string{"good chunk", "bad chunk"}})
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if text == "bad chunk" {
			return nil, errors.New("backend exploded")
		}
		return mock.DeterministicVector(text, 8), nil
	}

	ctx := context.Background()
	f.pool.Start(ctx)

	job := f.enqueueAndWait(t, ctx, EnqueueRequest{
		DocumentId: "doc-1", UserId: "user-1", FilePath: f.filePath, FileType: "text",
	})

	assert.Equal(t, core.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "embedding failed")
}

func TestNewPool_Validation(t *testing.T) {
	_, err := NewPool(nil, nil, nil, nil, nil, 1, 1)
	assert.ErrorIs(t, err, ErrJobRepositoryRequired)
}
