package source

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-labs/mentat/internal/container"
)

// collector gathers delivered events behind a mutex.
type collector struct {
	mu     sync.Mutex
	events []container.InteractionEvent
}

func (c *collector) onEvent(ev container.InteractionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestChannelSource(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers emitted events", func(t *testing.T) {
		s := NewChannelSource(0)
		var got collector
		h, err := s.Observe(ctx, got.onEvent)
		require.NoError(t, err)
		defer h.Cancel()

		require.NoError(t, s.Emit(ctx, container.InteractionEvent{Type: "a"}))
		require.NoError(t, s.Emit(ctx, container.InteractionEvent{Type: "b"}))

		require.Eventually(t, func() bool { return got.count() == 2 },
			2*time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"a", "b"}, got.types())
	})

	t.Run("drops events while nobody observes", func(t *testing.T) {
		s := NewChannelSource(0)
		require.NoError(t, s.Emit(ctx, container.InteractionEvent{Type: "lost"}))

		var got collector
		h, err := s.Observe(ctx, got.onEvent)
		require.NoError(t, err)
		defer h.Cancel()

		time.Sleep(100 * time.Millisecond)
		assert.Zero(t, got.count())
	})

	t.Run("rejects a second concurrent observation", func(t *testing.T) {
		s := NewChannelSource(0)
		h, err := s.Observe(ctx, func(container.InteractionEvent) {})
		require.NoError(t, err)
		defer h.Cancel()

		_, err = s.Observe(ctx, func(container.InteractionEvent) {})
		require.ErrorIs(t, err, ErrAlreadyObserving)
	})

	t.Run("cancel ends the observation and allows a new one", func(t *testing.T) {
		s := NewChannelSource(0)
		var first collector
		h, err := s.Observe(ctx, first.onEvent)
		require.NoError(t, err)

		h.Cancel()
		select {
		case <-h.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("observation did not stop")
		}
		require.ErrorIs(t, h.Err(), context.Canceled)

		// events in the gap are lost
		require.NoError(t, s.Emit(ctx, container.InteractionEvent{Type: "gap"}))

		var second collector
		h2, err := s.Observe(ctx, second.onEvent)
		require.NoError(t, err)
		defer h2.Cancel()

		require.NoError(t, s.Emit(ctx, container.InteractionEvent{Type: "fresh"}))
		require.Eventually(t, func() bool { return second.count() == 1 },
			2*time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"fresh"}, second.types())
		assert.Zero(t, first.count())
	})

	t.Run("parent context cancel ends the observation", func(t *testing.T) {
		s := NewChannelSource(0)
		obsCtx, cancel := context.WithCancel(ctx)
		h, err := s.Observe(obsCtx, func(container.InteractionEvent) {})
		require.NoError(t, err)

		cancel()
		select {
		case <-h.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("observation did not stop")
		}
		require.ErrorIs(t, h.Err(), context.Canceled)
	})

	t.Run("emit respects caller context when the buffer is full", func(t *testing.T) {
		s := NewChannelSource(1)
		block := make(chan struct{})
		h, err := s.Observe(ctx, func(container.InteractionEvent) { <-block })
		require.NoError(t, err)
		defer func() {
			close(block)
			h.Cancel()
		}()

		// first fills the callback, second fills the buffer
		require.NoError(t, s.Emit(ctx, container.InteractionEvent{Type: "cb"}))
		require.NoError(t, s.Emit(ctx, container.InteractionEvent{Type: "buf"}))

		emitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		err = s.Emit(emitCtx, container.InteractionEvent{Type: "overflow"})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
