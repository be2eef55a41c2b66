package core

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// Identical content always produces the identical ID.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ContentType identifies the kind of content stored in a vector collection.
type ContentType int

const (
	// ContentTypeText represents extracted document text chunks.
	ContentTypeText ContentType = iota + 1
	// ContentTypeImage represents extracted images with OCR text.
	ContentTypeImage
)

// String returns the canonical lowercase name of the content type.
func (ct ContentType) String() string {
	switch ct {
	case ContentTypeText:
		return "text"
	case ContentTypeImage:
		return "image"
	default:
		return "unknown"
	}
}

// JobStatus tracks a job through its lifecycle.
type JobStatus int

const (
	// JobStatusQueued means the job is waiting for a worker.
	JobStatusQueued JobStatus = iota + 1
	// JobStatusActive means a worker currently owns the job.
	JobStatusActive
	// JobStatusCompleted is a terminal success state.
	JobStatusCompleted
	// JobStatusFailed is a terminal failure state.
	JobStatusFailed
	// JobStatusStalled means the job went too long without a progress update.
	JobStatusStalled
)

// String returns the canonical lowercase name of the status.
func (s JobStatus) String() string {
	switch s {
	case JobStatusQueued:
		return "queued"
	case JobStatusActive:
		return "active"
	case JobStatusCompleted:
		return "completed"
	case JobStatusFailed:
		return "failed"
	case JobStatusStalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is completed or failed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobOptions holds optional, typed per-job settings.
type JobOptions struct {
	ContentType ContentType // Defaults to ContentTypeText when zero
	BatchSize   int         // Embedding batch size override; 0 uses the configured default
}

// Job is one document's ingestion task, tracked from queued to a terminal state.
type Job struct {
	Id         string // Queue-assigned, opaque
	DocumentId string
	UserId     string
	SessionId  string // Optional
	FilePath   string
	FileType   string
	Options    JobOptions
	Status     JobStatus
	Progress   int // 0-100
	Message    string
	Error      string // Populated on failure
	RetryCount int
	EnqueuedAt time.Time
	UpdatedAt  time.Time // Last progress or state change; drives stall detection
	FinishedAt time.Time // Zero until terminal
}

// JobSummary reports the outcome of a completed job.
type JobSummary struct {
	JobId           string
	DocumentId      string
	ChunksProcessed int
	VectorsStored   int
	ProcessingTime  time.Duration
}

// VectorEntry is one embedded chunk stored in a user collection.
type VectorEntry struct {
	Id         string
	DocumentId string
	SessionId  string
	ChunkIndex int // Original position within the document
	Text       string
	Vector     []float32
	Metadata   map[string]string
	InsertedAt time.Time
}

// SearchResult pairs a stored entry with its similarity score.
type SearchResult struct {
	Entry *VectorEntry
	Score float32
}

// CacheEntry is a memoized embedding keyed by (normalized text, model).
type CacheEntry struct {
	Key        string
	Vector     []float32
	Dimensions int
	Model      string
}

// CacheKey derives the deterministic cache key for a (text, model) pair.
// Text is normalized (trimmed, collapsed whitespace) before hashing so
// insignificant formatting differences still hit the same entry.
func CacheKey(text, model string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}

// CollectionName derives the deterministic collection name for a user and
// content type. The user id is hashed so the name is not reversible, and
// re-deriving always yields the same collection.
func CollectionName(userID string, ct ContentType) string {
	h, _ := blake2b.New(6, nil)
	h.Write([]byte(userID))
	return "col_" + hex.EncodeToString(h.Sum(nil)) + "_" + ct.String()
}

// ProgressEvent is an ephemeral, best-effort notification about a job.
// The job store, not the event stream, is the durability boundary.
type ProgressEvent struct {
	Type       string    `json:"type"`
	DocumentId string    `json:"documentId"`
	JobId      string    `json:"jobId"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// Progress event types delivered to users.
const (
	EventDocumentProgress  = "document-progress"
	EventDocumentCompleted = "document-completed"
	EventDocumentFailed    = "document-failed"
	EventQueueStatus       = "queue-status"
)
