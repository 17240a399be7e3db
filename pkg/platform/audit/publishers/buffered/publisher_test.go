package buffered

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	id "accman/pkg/domain"
	audit "accman/pkg/platform/audit"
	"accman/pkg/platform/audit/store/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRingBuffer_DropsOldest(t *testing.T) {
	b := NewRingBuffer(2)
	b.Enqueue(audit.Event{ID: "1"})
	b.Enqueue(audit.Event{ID: "2"})
	b.Enqueue(audit.Event{ID: "3"})

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, int64(1), b.Dropped())

	batch := b.DequeueBatch(10)
	require.Len(t, batch, 2)
	assert.Equal(t, "2", batch[0].ID)
	assert.Equal(t, "3", batch[1].ID)
	assert.Nil(t, b.DequeueBatch(1))
}

func TestPublisher_ForwardsWhileRunning(t *testing.T) {
	sink := memory.NewInMemoryStore()
	pub := New(sink, WithFlushInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pub.Run(ctx) }()

	userID := id.UserID(uuid.New())
	require.NoError(t, pub.Emit(ctx, audit.Event{UserID: userID, Action: audit.EventAccountCreated}))

	require.Eventually(t, func() bool {
		events, _ := sink.ListByUser(ctx, userID)
		return len(events) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestPublisher_DrainsOnShutdown(t *testing.T) {
	sink := memory.NewInMemoryStore()
	pub := New(sink, WithFlushInterval(time.Hour), WithCapacity(100))

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: audit.EventAccountsImported}))
	}
	assert.Equal(t, 10, pub.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, pub.Run(ctx))

	events, err := sink.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 10)
	assert.Zero(t, pub.Pending())
}
