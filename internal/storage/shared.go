package storage

import (
	"context"

	"github.com/praxis-labs/mentat/internal/container"
)

// sharedStore wraps a store whose lifetime is owned elsewhere. Release
// is a no-op so containers holding the wrapper cannot close a backend
// other users still depend on.
type sharedStore struct {
	inner container.DataStorage
}

// Shared returns a view of the store with Release disarmed. The owner
// releases the inner store directly when shutting down.
func Shared(inner container.DataStorage) container.DataStorage {
	return &sharedStore{inner: inner}
}

func (s *sharedStore) Initialize(ctx context.Context) error {
	return s.inner.Initialize(ctx)
}

func (s *sharedStore) SaveState(ctx context.Context, userID string, state container.ContainerState) error {
	return s.inner.SaveState(ctx, userID, state)
}

func (s *sharedStore) LoadState(ctx context.Context, userID string) (*container.ContainerState, error) {
	return s.inner.LoadState(ctx, userID)
}

func (s *sharedStore) SaveInteraction(ctx context.Context, event container.InteractionEvent) error {
	return s.inner.SaveInteraction(ctx, event)
}

func (s *sharedStore) LoadRecent(ctx context.Context, userID string, limit int, eventTypes ...string) ([]container.InteractionEvent, error) {
	return s.inner.LoadRecent(ctx, userID, limit, eventTypes...)
}

func (s *sharedStore) DeleteUserData(ctx context.Context, userID string) error {
	return s.inner.DeleteUserData(ctx, userID)
}

func (s *sharedStore) Release(_ context.Context) error {
	return nil
}
