package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-labs/mentat/internal/container"
)

// testUser returns a unique user id and schedules best-effort cleanup,
// so the suite can run against persistent backends.
func testUser(t *testing.T, store container.DataStorage) string {
	t.Helper()
	id := "u-" + uuid.NewString()
	t.Cleanup(func() { _ = store.DeleteUserData(context.Background(), id) })
	return id
}

// runStorageSuite exercises the DataStorage contract against a backend.
// newStore must return an uninitialized store.
func runStorageSuite(t *testing.T, newStore func(t *testing.T) container.DataStorage) {
	ctx := context.Background()

	t.Run("use before initialize fails", func(t *testing.T) {
		store := newStore(t)
		err := store.SaveInteraction(ctx, container.InteractionEvent{UserID: "u", Type: "t", Timestamp: 1})
		require.ErrorIs(t, err, ErrNotInitialized)
	})

	t.Run("initialize is idempotent", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Initialize(ctx))
		require.NoError(t, store.Initialize(ctx))
	})

	t.Run("absent state loads as nil", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Initialize(ctx))
		user := testUser(t, store)

		state, err := store.LoadState(ctx, user)
		require.NoError(t, err)
		assert.Nil(t, state)
	})

	t.Run("state round trip and upsert", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Initialize(ctx))
		user := testUser(t, store)

		first := container.ContainerState{Payload: []byte("model-a"), Version: 1}
		require.NoError(t, store.SaveState(ctx, user, first))

		loaded, err := store.LoadState(ctx, user)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, first, *loaded)

		second := container.ContainerState{Payload: []byte("model-b"), Version: 2}
		require.NoError(t, store.SaveState(ctx, user, second))

		loaded, err = store.LoadState(ctx, user)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, second, *loaded)
	})

	t.Run("recent interactions come newest first", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Initialize(ctx))
		user := testUser(t, store)

		for i, typ := range []string{"first", "second", "third"} {
			ev := container.InteractionEvent{UserID: user, Type: typ, Timestamp: int64(100 + i)}
			require.NoError(t, store.SaveInteraction(ctx, ev))
		}

		events, err := store.LoadRecent(ctx, user, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "third", events[0].Type)
		assert.Equal(t, "second", events[1].Type)

		// equal timestamps resolve to the later insert first
		require.NoError(t, store.SaveInteraction(ctx, container.InteractionEvent{UserID: user, Type: "tie-a", Timestamp: 500}))
		require.NoError(t, store.SaveInteraction(ctx, container.InteractionEvent{UserID: user, Type: "tie-b", Timestamp: 500}))
		events, err = store.LoadRecent(ctx, user, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "tie-b", events[0].Type)
		assert.Equal(t, "tie-a", events[1].Type)
	})

	t.Run("recent interactions filter by type", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Initialize(ctx))
		user := testUser(t, store)

		for i, typ := range []string{"keep", "drop", "keep", "other"} {
			ev := container.InteractionEvent{UserID: user, Type: typ, Timestamp: int64(10 + i)}
			require.NoError(t, store.SaveInteraction(ctx, ev))
		}

		events, err := store.LoadRecent(ctx, user, 10, "keep", "other")
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, "other", events[0].Type)
		assert.Equal(t, "keep", events[1].Type)
		assert.Equal(t, "keep", events[2].Type)
	})

	t.Run("attributes survive the round trip", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Initialize(ctx))
		user := testUser(t, store)

		withAttrs := container.InteractionEvent{
			UserID:     user,
			Type:       "file.modified",
			Attributes: map[string]string{"path": "notes/today.md", "dir": "notes"},
			Timestamp:  1,
		}
		bare := container.InteractionEvent{UserID: user, Type: "tick", Timestamp: 2}
		require.NoError(t, store.SaveInteraction(ctx, withAttrs))
		require.NoError(t, store.SaveInteraction(ctx, bare))

		events, err := store.LoadRecent(ctx, user, 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Nil(t, events[0].Attributes)
		assert.Equal(t, withAttrs.Attributes, events[1].Attributes)
	})

	t.Run("delete user data is scoped to the user", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Initialize(ctx))
		victim := testUser(t, store)
		other := testUser(t, store)

		require.NoError(t, store.SaveState(ctx, victim, container.ContainerState{Payload: []byte("v"), Version: 1}))
		require.NoError(t, store.SaveState(ctx, other, container.ContainerState{Payload: []byte("o"), Version: 1}))
		require.NoError(t, store.SaveInteraction(ctx, container.InteractionEvent{UserID: victim, Type: "a", Timestamp: 1}))
		require.NoError(t, store.SaveInteraction(ctx, container.InteractionEvent{UserID: other, Type: "b", Timestamp: 1}))

		require.NoError(t, store.DeleteUserData(ctx, victim))

		state, err := store.LoadState(ctx, victim)
		require.NoError(t, err)
		assert.Nil(t, state)
		events, err := store.LoadRecent(ctx, victim, 10)
		require.NoError(t, err)
		assert.Empty(t, events)

		state, err = store.LoadState(ctx, other)
		require.NoError(t, err)
		require.NotNil(t, state)
		events, err = store.LoadRecent(ctx, other, 10)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("zero limit loads nothing", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Initialize(ctx))
		user := testUser(t, store)

		require.NoError(t, store.SaveInteraction(ctx, container.InteractionEvent{UserID: user, Type: "a", Timestamp: 1}))
		events, err := store.LoadRecent(ctx, user, 0)
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
