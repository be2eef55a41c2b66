package embedcache

import "errors"

var (
	// ErrCacheStoreRequired is returned when a cache store is not provided.
	ErrCacheStoreRequired = errors.New("cache store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrRateLimited is returned when the service-level request cap is hit.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrEmptyText is returned for an empty input text.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrDimensionMismatch is returned when the backend produces a vector of
	// unexpected length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
