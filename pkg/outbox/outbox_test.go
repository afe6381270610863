package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-dmcp/lattice/pkg/types"
)

func TestBrokerPublishDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(&types.Message{EventType: types.EventDeletionPlanned})

	select {
	case msg := <-sub:
		assert.Equal(t, types.EventDeletionPlanned, msg.EventType)
		assert.False(t, msg.CreatedAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
	}
}

func TestBrokerSubscriberCount(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	assert.Equal(t, 0, b.SubscriberCount())
	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBrokerRejectsFinalizationWithoutPlanned(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(DeletionDone("mc16", "dataset001", "RSE_A", 1024, "srm://host/path", 1.5))

	select {
	case <-sub:
		t.Fatal("broker broadcast a finalization message with no matching deletion-planned")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 0, b.PendingCount())
}

func TestBrokerTracksPlannedThroughFinalization(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(DeletionPlanned("mc16", "dataset001", 1024, "srm://host/path", "RSE_A"))
	require.Eventually(t, func() bool { return b.PendingCount() == 1 }, time.Second, time.Millisecond)
	<-sub

	b.Publish(DeletionDone("mc16", "dataset001", "RSE_A", 1024, "srm://host/path", 1.5))
	select {
	case msg := <-sub:
		assert.Equal(t, types.EventDeletionDone, msg.EventType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for deletion-done broadcast")
	}
	assert.Equal(t, 0, b.PendingCount())

	// A second finalization for the same replica has nothing open to close.
	b.Publish(DeletionFailed("mc16", "dataset001", "RSE_A", 1024, "srm://host/path", "duplicate"))
	select {
	case <-sub:
		t.Fatal("broker broadcast a second finalization for an already-closed replica")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDeletionMessagePayloadShapes(t *testing.T) {
	planned := DeletionPlanned("mc16", "dataset001", 1024, "srm://host/path", "RSE_A")
	require.Equal(t, types.EventDeletionPlanned, planned.EventType)
	assert.Equal(t, "mc16", planned.Payload["scope"])
	assert.Equal(t, int64(1024), planned.Payload["file-size"])

	done := DeletionDone("mc16", "dataset001", "RSE_A", 1024, "srm://host/path", 1.5)
	assert.Equal(t, 1.5, done.Payload["duration"])

	failed := DeletionFailed("mc16", "dataset001", "RSE_A", 1024, "srm://host/path", "not found (already deleted?)")
	assert.Equal(t, "not found (already deleted?)", failed.Payload["reason"])
}
