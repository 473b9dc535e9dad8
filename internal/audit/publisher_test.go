package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestPublisher_SyncEmit(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store)

	err := pub.Emit(context.Background(), Event{
		UserID:      "user-1",
		Subject:     "priya@example.com",
		Action:      ActionConsentGranted,
		Institution: "HDFC Bank",
		Decision:    DecisionGranted,
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ActionConsentGranted, events[0].Action)
	assert.False(t, events[0].Timestamp.IsZero(), "timestamp should be stamped on emit")
}

func TestPublisher_AsyncEmitDrains(t *testing.T) {
	store := NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(16))

	for i := 0; i < 5; i++ {
		require.NoError(t, pub.Emit(context.Background(), Event{
			UserID: "user-1",
			Action: ActionConsentRevoked,
		}))
	}
	pub.Close()

	events, err := pub.List(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestPublisher_SinkFanOut(t *testing.T) {
	store := NewInMemoryStore()
	sink := &recordingSink{}
	pub := NewPublisher(store, WithSink(sink))

	require.NoError(t, pub.Emit(context.Background(), Event{
		UserID:    "user-1",
		Action:    ActionConsentGranted,
		Timestamp: time.Now(),
	}))

	assert.Equal(t, 1, sink.count())
}
