package embedcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docvec/ai/mock"
	"github.com/poiesic/docvec/config"
	"github.com/poiesic/docvec/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(opts ...config.Option) *config.Config {
	base := []config.Option{
		config.WithEmbeddingModel("test-model"),
		config.WithBatchDelay(0),
	}
	return config.New(append(base, opts...)...)
}

func setupService(t *testing.T, embedder *mock.MockEmbedder, opts ...config.Option) *Service {
	t.Helper()
	_, _, store, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	svc, err := NewService(store, embedder, testConfig(opts...))
	require.NoError(t, err)
	t.Cleanup(svc.Release)
	return svc
}

func TestNewService_Validation(t *testing.T) {
	_, _, store, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	_, err = NewService(nil, mock.NewMockEmbedder(), testConfig())
	assert.ErrorIs(t, err, ErrCacheStoreRequired)

	_, err = NewService(store, nil, testConfig())
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestGetEmbedding_CacheMissThenHit(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	svc := setupService(t, embedder)
	ctx := context.Background()

	first, cached, err := svc.GetEmbedding(ctx, "hello world")
	require.NoError(t, err)
	assert.False(t, cached)
	assert.NotEmpty(t, first)

	second, cached, err := svc.GetEmbedding(ctx, "hello world")
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first, second, "cached vector must be bit-identical to the original")

	assert.Equal(t, 1, embedder.TextCallCount("hello world"),
		"the backend should only be called once for the same text")
}

func TestGetEmbedding_ConcurrentMissesCollapse(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		// Slow backend so every goroutine misses the cache before the
		// first call lands.
		time.Sleep(50 * time.Millisecond)
		return mock.DeterministicVector(text, 384), nil
	}
	svc := setupService(t, embedder)
	ctx := context.Background()

	const callers = 10
	var (
		start   sync.WaitGroup
		done    sync.WaitGroup
		mu      sync.Mutex
		vectors [][]float32
	)
	start.Add(1)
	for i := 0; i < callers; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			start.Wait()
			vector, _, err := svc.GetEmbedding(ctx, "shared text")
			assert.NoError(t, err)
			mu.Lock()
			vectors = append(vectors, vector)
			mu.Unlock()
		}()
	}
	start.Done()
	done.Wait()

	require.Len(t, vectors, callers)
	for _, v := range vectors {
		assert.Equal(t, vectors[0], v)
	}
	assert.Equal(t, 1, embedder.TextCallCount("shared text"),
		"concurrent misses on one key should collapse into a single backend call")
}

func TestGetEmbedding_NormalizedTextSharesCacheEntry(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	svc := setupService(t, embedder)
	ctx := context.Background()

	_, _, err := svc.GetEmbedding(ctx, "hello   world")
	require.NoError(t, err)

	_, cached, err := svc.GetEmbedding(ctx, "  hello world  ")
	require.NoError(t, err)
	assert.True(t, cached, "whitespace variants should hit the same cache entry")
}

func TestGetEmbedding_EmptyText(t *testing.T) {
	svc := setupService(t, mock.NewMockEmbedder())

	_, _, err := svc.GetEmbedding(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestGetEmbedding_BackendError(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("connection refused")
	}
	svc := setupService(t, embedder)

	_, _, err := svc.GetEmbedding(context.Background(), "doomed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inference backend")
}

func TestGetEmbedding_RateLimited(t *testing.T) {
	svc := setupService(t, mock.NewMockEmbedder(), config.WithRateLimit(time.Minute, 2))
	ctx := context.Background()

	_, _, err := svc.GetEmbedding(ctx, "one")
	require.NoError(t, err)
	_, _, err = svc.GetEmbedding(ctx, "two")
	require.NoError(t, err)

	_, _, err = svc.GetEmbedding(ctx, "three")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestGetEmbedding_DimensionMismatch(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return []float32{1, 2, 3}, nil
		}
		return []float32{1, 2}, nil
	}
	svc := setupService(t, embedder)
	ctx := context.Background()

	_, _, err := svc.GetEmbedding(ctx, "first")
	require.NoError(t, err)

	_, _, err = svc.GetEmbedding(ctx, "second")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestGetEmbeddingsBatch_OrderPreserved(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	svc := setupService(t, embedder)

	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	result, err := svc.GetEmbeddingsBatch(context.Background(), texts, 2)
	require.NoError(t, err)

	require.True(t, result.Success())
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 5, result.Successful)
	require.Len(t, result.Results, 5)

	for i, r := range result.Results {
		assert.Equal(t, i, r.Index, "results must come back in input order")
		expected := mock.DeterministicVector(texts[i], 384)
		assert.Equal(t, expected, r.Vector)
	}
}

func TestGetEmbeddingsBatch_DeduplicatesAcrossCalls(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	svc := setupService(t, embedder)
	ctx := context.Background()

	first, err := svc.GetEmbeddingsBatch(ctx, []string{"repeated text", "unique one"}, 10)
	require.NoError(t, err)
	assert.Zero(t, first.CacheHits)

	second, err := svc.GetEmbeddingsBatch(ctx, []string{"repeated text", "unique two"}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, second.CacheHits)

	assert.Equal(t, 1, embedder.TextCallCount("repeated text"))
}

func TestGetEmbeddingsBatch_PartialFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if text == "poison" {
			return nil, errors.New("backend refused")
		}
		return mock.DeterministicVector(text, 8), nil
	}
	svc := setupService(t, embedder)

	result, err := svc.GetEmbeddingsBatch(context.Background(), []string{"good", "poison", "fine"}, 10)
	require.NoError(t, err, "item failures must not fail the whole batch call")

	assert.False(t, result.Success())
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Index)
	assert.Contains(t, result.Failures[0].Err.Error(), "backend refused")

	require.Len(t, result.Results, 2)
	assert.Equal(t, 0, result.Results[0].Index)
	assert.Equal(t, 2, result.Results[1].Index)
}

func TestGetEmbeddingsBatch_Empty(t *testing.T) {
	svc := setupService(t, mock.NewMockEmbedder())

	result, err := svc.GetEmbeddingsBatch(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.Zero(t, result.Total)
}

func TestGetEmbeddingsBatch_SingleLimiterCheck(t *testing.T) {
	// A batch of many items consumes one rate-limit slot, not one per item.
	svc := setupService(t, mock.NewMockEmbedder(), config.WithRateLimit(time.Minute, 1))

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}

	result, err := svc.GetEmbeddingsBatch(context.Background(), texts, 5)
	require.NoError(t, err)
	assert.True(t, result.Success())

	_, err = svc.GetEmbeddingsBatch(context.Background(), []string{"over"}, 5)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestStatsAndClear(t *testing.T) {
	svc := setupService(t, mock.NewMockEmbedder())
	ctx := context.Background()

	_, _, err := svc.GetEmbedding(ctx, "one")
	require.NoError(t, err)
	_, _, err = svc.GetEmbedding(ctx, "two")
	require.NoError(t, err)

	count, ttl, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 24*time.Hour, ttl)

	cleared, err := svc.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cleared)

	count, _, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestModel(t *testing.T) {
	svc := setupService(t, mock.NewMockEmbedder())
	assert.Equal(t, "test-model", svc.Model())
}
