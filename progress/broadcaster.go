package progress

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/docvec/core"
)

// subscriberBuffer is the channel depth per live connection. A slow
// consumer loses events rather than blocking emitters.
const subscriberBuffer = 16

// Broadcaster publishes per-job events to the originating user's live
// connections. Delivery is strictly best-effort: no queuing, no replay.
// The job store remains the authoritative record of job state.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan core.ProgressEvent
	nextID int
	logger *slog.Logger
}

// NewBroadcaster creates a new Broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[string]map[int]chan core.ProgressEvent),
		logger: logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a live connection for the user and returns the event
// channel plus a cancel function. The channel is closed on cancel.
func (b *Broadcaster) Subscribe(userID string) (<-chan core.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan core.ProgressEvent, subscriberBuffer)

	if b.subs[userID] == nil {
		b.subs[userID] = make(map[int]chan core.ProgressEvent)
	}
	b.subs[userID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if userSubs, ok := b.subs[userID]; ok {
			if sub, ok := userSubs[id]; ok {
				delete(userSubs, id)
				close(sub)
			}
			if len(userSubs) == 0 {
				delete(b.subs, userID)
			}
		}
	}
	return ch, cancel
}

// EmitToUser delivers an event to every live connection of the user.
// Returns true if at least one connection received it; events for users
// without a connection, or for slow consumers, are dropped.
func (b *Broadcaster) EmitToUser(userID string, event core.ProgressEvent) bool {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := false
	for _, ch := range b.subs[userID] {
		select {
		case ch <- event:
			delivered = true
		default:
			b.logger.Debug("dropping event for slow subscriber", "type", event.Type)
		}
	}
	return delivered
}

// DocumentProgress emits an incremental progress update for a job.
func (b *Broadcaster) DocumentProgress(userID string, job *core.Job) bool {
	return b.EmitToUser(userID, core.ProgressEvent{
		Type:       core.EventDocumentProgress,
		DocumentId: job.DocumentId,
		JobId:      job.Id,
		Progress:   job.Progress,
		Message:    job.Message,
		Status:     job.Status.String(),
	})
}

// DocumentCompleted emits the terminal success event for a job.
func (b *Broadcaster) DocumentCompleted(userID string, job *core.Job) bool {
	return b.EmitToUser(userID, core.ProgressEvent{
		Type:       core.EventDocumentCompleted,
		DocumentId: job.DocumentId,
		JobId:      job.Id,
		Progress:   100,
		Message:    job.Message,
		Status:     core.JobStatusCompleted.String(),
	})
}

// DocumentFailed emits the terminal failure event for a job.
func (b *Broadcaster) DocumentFailed(userID string, job *core.Job) bool {
	return b.EmitToUser(userID, core.ProgressEvent{
		Type:       core.EventDocumentFailed,
		DocumentId: job.DocumentId,
		JobId:      job.Id,
		Progress:   job.Progress,
		Message:    "Processing failed: " + job.Error,
		Status:     core.JobStatusFailed.String(),
	})
}

// QueueStatus emits a queue summary to the user.
func (b *Broadcaster) QueueStatus(userID string, counts map[core.JobStatus]int) bool {
	return b.EmitToUser(userID, core.ProgressEvent{
		Type: core.EventQueueStatus,
		Message: fmt.Sprintf("queued=%d active=%d completed=%d failed=%d stalled=%d",
			counts[core.JobStatusQueued], counts[core.JobStatusActive],
			counts[core.JobStatusCompleted], counts[core.JobStatusFailed],
			counts[core.JobStatusStalled]),
	})
}
