package events

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunningBroker(t *testing.T) *Broker {
	t.Helper()
	b := NewBroker()
	b.Start()
	t.Cleanup(b.Stop)
	return b
}

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := newRunningBroker(t)

	first := b.Subscribe()
	second := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{ID: "1", Type: EventSecretCreated, Message: "created"})

	for _, sub := range []Subscriber{first, second} {
		ev := receive(t, sub)
		assert.Equal(t, EventSecretCreated, ev.Type)
		assert.Equal(t, "created", ev.Message)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newRunningBroker(t)

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	// Channel is closed on unsubscribe
	_, open := <-sub
	assert.False(t, open)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := newRunningBroker(t)

	// Never drained; its buffer fills and further events are dropped
	_ = b.Subscribe()
	healthy := b.Subscribe()

	for i := 0; i < 100; i++ {
		b.Publish(&Event{Type: EventSecretUpdated})
	}

	ev := receive(t, healthy)
	require.NotNil(t, ev)
	assert.Equal(t, EventSecretUpdated, ev.Type)
}

// syncBuffer is a goroutine-safe writer for capturing sink output
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLogSinkWritesEventLines(t *testing.T) {
	b := newRunningBroker(t)

	out := &syncBuffer{}
	logger := zerolog.New(out)
	stop := StartLogSink(b, logger)

	b.Publish(&Event{
		ID:       "ev-1",
		Type:     EventSecretCreated,
		Message:  "secret.created contoso/db-password",
		Metadata: map[string]string{"secret": "db-password"},
	})

	require.Eventually(t, func() bool {
		return out.String() != ""
	}, 2*time.Second, 10*time.Millisecond)
	stop()

	line := out.String()
	assert.Contains(t, line, "secret.created")
	assert.Contains(t, line, "ev-1")
	assert.Contains(t, line, "db-password")

	// Stop detaches the subscriber
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestPublishAfterStopDoesNotBlock(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()

	done := make(chan struct{})
	go func() {
		b.Publish(&Event{Type: EventSecretPurged})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked after stop")
	}
}
