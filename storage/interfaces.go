package storage

import (
	"context"
	"time"

	"github.com/poiesic/docvec/core"
)

// CollectionInfo describes one user collection.
type CollectionInfo struct {
	Name        string
	ContentType core.ContentType
	EntryCount  int
}

// VectorRepository stores embedded entries in per-user, per-content-type
// collections. Implementations must be thread-safe; concurrent writers are
// expected and writes are idempotent per entry id (last write wins, content
// for a given id is deterministic).
type VectorRepository interface {
	// AddEntries writes entries into the caller's collection, creating the
	// collection lazily on first write. Writes are best-effort per entry;
	// returns the number of entries stored and the first error encountered.
	AddEntries(ctx context.Context, userID string, ct core.ContentType, entries ...*core.VectorEntry) (int, error)

	// FindSimilar ranks the caller's entries by cosine similarity to vector.
	// sessionID, when non-empty, restricts results to that session.
	// Results never include entries from other users' collections.
	FindSimilar(ctx context.Context, userID string, ct core.ContentType, vector []float32, sessionID string, limit int) ([]*core.SearchResult, error)

	// DeleteSession removes entries matching both userID and sessionID.
	// A missing collection is a successful no-op. Returns the number of
	// entries removed.
	DeleteSession(ctx context.Context, userID string, ct core.ContentType, sessionID string) (int, error)

	// DeleteUserCollection drops one of the user's collections irreversibly.
	DeleteUserCollection(ctx context.Context, userID string, ct core.ContentType) error

	// UserHasData reports whether any of the user's collections contain entries.
	UserHasData(ctx context.Context, userID string) (bool, error)

	// ListCollections returns info for the user's non-empty collections.
	ListCollections(ctx context.Context, userID string) ([]CollectionInfo, error)

	// Close closes the storage backend and releases resources.
	Close() error
}

// JobRepository persists ingestion jobs so the queue survives restarts.
type JobRepository interface {
	// PutJob writes the job state. When the job is terminal, its finished-at
	// index entry is maintained so EvictTerminal can trim old jobs.
	PutJob(ctx context.Context, job *core.Job) error

	// GetJob retrieves a job by id. Returns ErrNotFound if it doesn't exist.
	GetJob(ctx context.Context, id string) (*core.Job, error)

	// DeleteJob removes a job and its index entries.
	// Returns ErrNotFound if the job doesn't exist.
	DeleteJob(ctx context.Context, id string) error

	// JobsByStatus returns all jobs currently in the given status.
	JobsByStatus(ctx context.Context, status core.JobStatus) ([]*core.Job, error)

	// CountByStatus returns the number of jobs per status.
	CountByStatus(ctx context.Context) (map[core.JobStatus]int, error)

	// EvictTerminal deletes the oldest terminal jobs beyond keep.
	// Returns the number of jobs evicted.
	EvictTerminal(ctx context.Context, keep int) (int, error)

	// Close closes the storage backend and releases resources.
	Close() error
}

// CacheStore memoizes embeddings with a TTL. Unavailability must degrade to
// a cache miss, never to a hard failure of the caller.
type CacheStore interface {
	// GetEmbedding looks up a memoized embedding by cache key.
	// The second return value reports whether the key was present.
	GetEmbedding(ctx context.Context, key string) (*core.CacheEntry, bool, error)

	// SetEmbedding stores an embedding under its cache key with the given TTL.
	SetEmbedding(ctx context.Context, entry *core.CacheEntry, ttl time.Duration) error

	// Count returns the number of live cache entries.
	Count(ctx context.Context) (int, error)

	// Clear removes all cache entries and returns how many were removed.
	Clear(ctx context.Context) (int, error)
}
