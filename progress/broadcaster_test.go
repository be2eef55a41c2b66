package progress

import (
	"testing"

	"github.com/poiesic/docvec/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob() *core.Job {
	return &core.Job{
		Id:         "job-1",
		DocumentId: "doc-1",
		UserId:     "user-1",
		Status:     core.JobStatusActive,
		Progress:   40,
		Message:    "embedding chunks",
	}
}

func TestSubscribeAndEmit(t *testing.T) {
	b := NewBroadcaster(nil)

	ch, cancel := b.Subscribe("user-1")
	defer cancel()

	delivered := b.DocumentProgress("user-1", testJob())
	assert.True(t, delivered)

	event := <-ch
	assert.Equal(t, core.EventDocumentProgress, event.Type)
	assert.Equal(t, "doc-1", event.DocumentId)
	assert.Equal(t, "job-1", event.JobId)
	assert.Equal(t, 40, event.Progress)
	assert.Equal(t, "active", event.Status)
	assert.False(t, event.Timestamp.IsZero(), "timestamp should be stamped on emit")
}

func TestEmit_NoSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	assert.False(t, b.DocumentProgress("nobody", testJob()),
		"events for users without a connection are dropped")
}

func TestEmit_OnlyTargetUserReceives(t *testing.T) {
	b := NewBroadcaster(nil)

	ch1, cancel1 := b.Subscribe("user-1")
	defer cancel1()
	ch2, cancel2 := b.Subscribe("user-2")
	defer cancel2()

	b.DocumentProgress("user-1", testJob())

	select {
	case <-ch1:
	default:
		t.Fatal("user-1 should have received the event")
	}

	select {
	case <-ch2:
		t.Fatal("user-2 must not receive another user's event")
	default:
	}
}

func TestEmit_MultipleConnectionsSameUser(t *testing.T) {
	b := NewBroadcaster(nil)

	ch1, cancel1 := b.Subscribe("user-1")
	defer cancel1()
	ch2, cancel2 := b.Subscribe("user-1")
	defer cancel2()

	b.DocumentCompleted("user-1", testJob())

	for i, ch := range []<-chan core.ProgressEvent{ch1, ch2} {
		select {
		case event := <-ch:
			assert.Equal(t, core.EventDocumentCompleted, event.Type)
			assert.Equal(t, 100, event.Progress)
		default:
			t.Fatalf("connection %d should have received the event", i)
		}
	}
}

func TestEmit_SlowSubscriberDropsEvents(t *testing.T) {
	b := NewBroadcaster(nil)

	_, cancel := b.Subscribe("user-1")
	defer cancel()

	// Fill the buffer and then some; emitters must never block.
	job := testJob()
	for i := 0; i < subscriberBuffer*2; i++ {
		b.DocumentProgress("user-1", job)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)

	ch, cancel := b.Subscribe("user-1")
	cancel()

	_, open := <-ch
	assert.False(t, open, "cancel should close the subscriber channel")

	// Emitting after cancel delivers to no one.
	assert.False(t, b.DocumentProgress("user-1", testJob()))

	// Double cancel is safe.
	cancel()
}

func TestDocumentFailedMessage(t *testing.T) {
	b := NewBroadcaster(nil)

	ch, cancel := b.Subscribe("user-1")
	defer cancel()

	job := testJob()
	job.Status = core.JobStatusFailed
	job.Error = "no chunks"
	b.DocumentFailed("user-1", job)

	event := <-ch
	assert.Equal(t, core.EventDocumentFailed, event.Type)
	assert.Equal(t, "Processing failed: no chunks", event.Message)
	assert.Equal(t, "failed", event.Status)
}

func TestQueueStatusEvent(t *testing.T) {
	b := NewBroadcaster(nil)

	ch, cancel := b.Subscribe("user-1")
	defer cancel()

	b.QueueStatus("user-1", map[core.JobStatus]int{
		core.JobStatusQueued: 2,
		core.JobStatusActive: 1,
	})

	event := <-ch
	require.Equal(t, core.EventQueueStatus, event.Type)
	assert.Contains(t, event.Message, "queued=2")
	assert.Contains(t, event.Message, "active=1")
}
