package queue

import "errors"

var (
	// ErrJobRepositoryRequired is returned when a job repository is not provided.
	ErrJobRepositoryRequired = errors.New("job repository required")

	// ErrInvalidStallInterval is returned for a non-positive stall interval.
	ErrInvalidStallInterval = errors.New("stall interval must be positive")

	// ErrQueueFull is returned when the pending buffer cannot take more jobs.
	ErrQueueFull = errors.New("queue is full")

	// ErrNotClaimable is returned when a job is already owned by a worker or
	// is no longer queued.
	ErrNotClaimable = errors.New("job is not claimable")

	// ErrChunkSourceRequired is returned when a chunk source is not provided.
	ErrChunkSourceRequired = errors.New("chunk source required")

	// ErrNoChunks is returned when a document yields no text chunks.
	ErrNoChunks = errors.New("document produced no chunks")
)
