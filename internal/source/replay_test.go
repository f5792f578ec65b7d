package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/praxis-labs/mentat/internal/container"
	"github.com/praxis-labs/mentat/internal/storage"
)

func seedHistory(t *testing.T, store *storage.MemoryStore, userID string, types ...string) {
	t.Helper()
	ctx := context.Background()
	for i, typ := range types {
		ev := container.InteractionEvent{
			Type:      typ,
			UserID:    userID,
			Timestamp: int64(i + 1),
		}
		require.NoError(t, store.SaveInteraction(ctx, ev))
	}
}

func TestReplaySource(t *testing.T) {
	ctx := context.Background()

	t.Run("requires history and user", func(t *testing.T) {
		_, err := NewReplaySource(ReplayConfig{UserID: "u"})
		require.Error(t, err)
		_, err = NewReplaySource(ReplayConfig{History: storage.NewMemoryStore()})
		require.Error(t, err)
	})

	t.Run("replays history oldest first", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Initialize(ctx))
		seedHistory(t, store, "u-replay", "open", "edit", "save")

		src, err := NewReplaySource(ReplayConfig{
			History:         store,
			UserID:          "u-replay",
			EventsPerSecond: 1000,
			Logger:          zap.NewNop(),
		})
		require.NoError(t, err)

		var got collector
		h, err := src.Observe(ctx, got.onEvent)
		require.NoError(t, err)

		select {
		case <-h.Done():
		case <-time.After(3 * time.Second):
			t.Fatal("replay did not finish")
		}
		require.NoError(t, h.Err())
		assert.Equal(t, []string{"open", "edit", "save"}, got.types())
	})

	t.Run("filters by type", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Initialize(ctx))
		seedHistory(t, store, "u-filter", "keep", "skip", "keep")

		src, err := NewReplaySource(ReplayConfig{
			History:         store,
			UserID:          "u-filter",
			EventsPerSecond: 1000,
			Types:           []string{"keep"},
			Logger:          zap.NewNop(),
		})
		require.NoError(t, err)

		var got collector
		h, err := src.Observe(ctx, got.onEvent)
		require.NoError(t, err)
		<-h.Done()
		require.NoError(t, h.Err())
		assert.Equal(t, []string{"keep", "keep"}, got.types())
	})

	t.Run("cancel stops a paced replay", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Initialize(ctx))
		seedHistory(t, store, "u-slow", "a", "b", "c", "d", "e")

		src, err := NewReplaySource(ReplayConfig{
			History:         store,
			UserID:          "u-slow",
			EventsPerSecond: 2,
			Logger:          zap.NewNop(),
		})
		require.NoError(t, err)

		var got collector
		h, err := src.Observe(ctx, got.onEvent)
		require.NoError(t, err)

		require.Eventually(t, func() bool { return got.count() >= 1 },
			2*time.Second, 5*time.Millisecond)
		h.Cancel()

		select {
		case <-h.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("replay did not stop")
		}
		require.ErrorIs(t, h.Err(), context.Canceled)
		assert.Less(t, got.count(), 5)
	})

	t.Run("reports history load failures", func(t *testing.T) {
		store := storage.NewMemoryStore() // never initialized

		src, err := NewReplaySource(ReplayConfig{
			History:         store,
			UserID:          "u-broken",
			EventsPerSecond: 1000,
			Logger:          zap.NewNop(),
		})
		require.NoError(t, err)

		h, err := src.Observe(ctx, func(container.InteractionEvent) {})
		require.NoError(t, err)
		<-h.Done()
		require.ErrorIs(t, h.Err(), storage.ErrNotInitialized)
	})
}
