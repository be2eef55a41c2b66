package embedcache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docvec/ai"
	"github.com/poiesic/docvec/config"
	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
	"golang.org/x/sync/singleflight"
)

// Service is a deduplicating, batching front for the inference backend.
// Embeddings are memoized in a content-addressed cache store keyed by
// (normalized text, model), so repeated boilerplate across documents costs
// one inference call instead of many. Concurrent misses on the same key are
// collapsed into a single backend call via singleflight.
type Service struct {
	store      storage.CacheStore
	embedder   ai.Embedder
	model      string
	ttl        time.Duration
	batchSize  int
	maxBatch   int
	batchDelay time.Duration
	limiter    *windowLimiter
	flight     singleflight.Group
	pool       *ants.Pool
	logger     *slog.Logger

	mu         sync.Mutex
	dimensions int // Fixed by the first successful embedding
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// NewService creates an embedding cache service. The cache store handle is
// injected explicitly; the service holds no ambient global state.
func NewService(store storage.CacheStore, embedder ai.Embedder, cfg *config.Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, ErrCacheStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	s := &Service{
		store:      store,
		embedder:   embedder,
		model:      cfg.EmbeddingModel,
		ttl:        cfg.CacheTTL,
		batchSize:  cfg.BatchSize,
		maxBatch:   cfg.MaxBatchSize,
		batchDelay: cfg.BatchDelay,
		limiter:    newWindowLimiter(cfg.RateLimitWindow, cfg.RateLimitRequests),
		pool:       pool,
		logger:     slog.Default().With("component", "embedcache"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Release releases the intra-batch worker pool.
// The service should not be used after calling Release.
func (s *Service) Release() {
	s.pool.Release()
}

// Model returns the configured embedding model identifier.
func (s *Service) Model() string {
	return s.model
}

// GetEmbedding returns the embedding for text, serving from cache when
// possible. The second return value reports whether the result was cached.
// Requests beyond the configured rate cap are rejected with ErrRateLimited.
func (s *Service) GetEmbedding(ctx context.Context, text string) ([]float32, bool, error) {
	if !s.limiter.Allow() {
		return nil, false, ErrRateLimited
	}
	return s.getEmbedding(ctx, text)
}

// getEmbedding is the rate-limit-free path shared with the batch variant.
func (s *Service) getEmbedding(ctx context.Context, text string) ([]float32, bool, error) {
	if text == "" {
		return nil, false, ErrEmptyText
	}

	key := core.CacheKey(text, s.model)

	// A cache store failure degrades to a miss, never to a hard failure.
	if entry, ok, err := s.store.GetEmbedding(ctx, key); err != nil {
		s.logger.Warn("cache store lookup failed, treating as miss", "err", err)
	} else if ok {
		return entry.Vector, true, nil
	}

	// Collapse concurrent misses on the same key into one backend call.
	v, err, _ := s.flight.Do(key, func() (any, error) {
		vector, err := s.embedder.EmbedText(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("inference backend: %w", err)
		}
		if err := s.checkDimensions(vector); err != nil {
			return nil, err
		}

		entry := &core.CacheEntry{
			Key:        key,
			Vector:     vector,
			Dimensions: len(vector),
			Model:      s.model,
		}
		if err := s.store.SetEmbedding(ctx, entry, s.ttl); err != nil {
			s.logger.Warn("cache store write failed", "err", err)
		}
		return vector, nil
	})
	if err != nil {
		return nil, false, err
	}

	return v.([]float32), false, nil
}

// Result is one successfully embedded item of a batch call.
type Result struct {
	Index  int // Position in the original input slice
	Vector []float32
	Cached bool
}

// ItemFailure records one failed item of a batch call.
type ItemFailure struct {
	Index int
	Err   error
}

// BatchResult is the structured outcome of GetEmbeddingsBatch.
// Partial success is a first-class outcome: callers must inspect Failures
// rather than treat any single failure as fatal to the whole batch.
type BatchResult struct {
	Results    []Result // Successful items, ordered by original index
	Failures   []ItemFailure
	Total      int
	Successful int
	Failed     int
	CacheHits  int
}

// Success reports whether every item in the batch was embedded.
func (r *BatchResult) Success() bool {
	return len(r.Failures) == 0
}

// GetEmbeddingsBatch embeds texts in fixed-size batches. Items within a
// batch run concurrently on a bounded pool, each independently cache-checked;
// a fixed delay separates batches to avoid saturating the inference backend.
// Results carry their original input index regardless of completion order.
func (s *Service) GetEmbeddingsBatch(ctx context.Context, texts []string, batchSize int) (*BatchResult, error) {
	if !s.limiter.Allow() {
		return nil, ErrRateLimited
	}

	result := &BatchResult{Total: len(texts)}
	if len(texts) == 0 {
		return result, nil
	}

	if batchSize <= 0 {
		batchSize = s.batchSize
	}
	if batchSize > s.maxBatch {
		batchSize = s.maxBatch
	}

	var mu sync.Mutex
	for start := 0; start < len(texts); start += batchSize {
		if start > 0 {
			// Fixed inter-batch pause; the main backpressure mechanism
			// against the inference backend.
			timer := time.NewTimer(s.batchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			index, text := i, texts[i]
			wg.Add(1)
			submitErr := s.pool.Submit(func() {
				defer wg.Done()
				vector, cached, err := s.getEmbedding(ctx, text)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					result.Failures = append(result.Failures, ItemFailure{Index: index, Err: err})
					return
				}
				if cached {
					result.CacheHits++
				}
				result.Results = append(result.Results, Result{Index: index, Vector: vector, Cached: cached})
			})
			if submitErr != nil {
				wg.Done()
				mu.Lock()
				result.Failures = append(result.Failures, ItemFailure{Index: index, Err: submitErr})
				mu.Unlock()
			}
		}
		wg.Wait()
	}

	// Restore original input order, independent of completion order.
	slices.SortFunc(result.Results, func(a, b Result) int {
		return a.Index - b.Index
	})
	slices.SortFunc(result.Failures, func(a, b ItemFailure) int {
		return a.Index - b.Index
	})

	result.Successful = len(result.Results)
	result.Failed = len(result.Failures)
	return result, nil
}

// Stats reports the number of live cache entries and the configured TTL.
func (s *Service) Stats(ctx context.Context) (cachedCount int, ttl time.Duration, err error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	return count, s.ttl, nil
}

// Clear removes all memoized embeddings and returns how many were removed.
func (s *Service) Clear(ctx context.Context) (int, error) {
	return s.store.Clear(ctx)
}

// checkDimensions fixes the expected dimension on first success and rejects
// later mismatches, which would corrupt similarity search.
func (s *Service) checkDimensions(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: backend returned empty vector", ErrDimensionMismatch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimensions == 0 {
		s.dimensions = len(vector)
		return nil
	}
	if len(vector) != s.dimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vector), s.dimensions)
	}
	return nil
}
