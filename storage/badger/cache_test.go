package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/docvec/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCacheStore(t *testing.T) *CacheStore {
	t.Helper()
	_, _, store, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return store
}

func TestCacheSetAndGet(t *testing.T) {
	store := setupCacheStore(t)
	ctx := context.Background()

	entry := &core.CacheEntry{
		Key:        core.CacheKey("hello world", "test-model"),
		Vector:     []float32{0.1, 0.2, 0.3},
		Dimensions: 3,
		Model:      "test-model",
	}
	require.NoError(t, store.SetEmbedding(ctx, entry, time.Hour))

	got, ok, err := store.GetEmbedding(ctx, entry.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.Vector, got.Vector, "cached vector must be bit-identical")
	assert.Equal(t, entry.Model, got.Model)
	assert.Equal(t, 3, got.Dimensions)
}

func TestCacheGet_Miss(t *testing.T) {
	store := setupCacheStore(t)

	got, ok, err := store.GetEmbedding(context.Background(), "no-such-key")
	require.NoError(t, err, "a miss is not an error")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestCacheCountAndClear(t *testing.T) {
	store := setupCacheStore(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		entry := &core.CacheEntry{
			Key:        core.CacheKey(text, "m"),
			Vector:     []float32{1},
			Dimensions: 1,
			Model:      "m",
		}
		require.NoError(t, store.SetEmbedding(ctx, entry, time.Hour))
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	cleared, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, cleared)

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
