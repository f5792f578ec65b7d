package container

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type managerFixtures struct {
	mu       sync.Mutex
	engines  map[string]*fakeEngine
	storages map[string]*fakeStorage
	sources  map[string]*fakeSource
}

func newManagerFixtures() *managerFixtures {
	return &managerFixtures{
		engines:  make(map[string]*fakeEngine),
		storages: make(map[string]*fakeStorage),
		sources:  make(map[string]*fakeSource),
	}
}

func (f *managerFixtures) factories() Factories {
	return Factories{
		Engine: func(userID string) LearningEngine {
			f.mu.Lock()
			defer f.mu.Unlock()
			e := &fakeEngine{}
			f.engines[userID] = e
			return e
		},
		Storage: func(userID string) DataStorage {
			f.mu.Lock()
			defer f.mu.Unlock()
			s := newFakeStorage()
			f.storages[userID] = s
			return s
		},
		Source: func(userID string) DataSource {
			f.mu.Lock()
			defer f.mu.Unlock()
			s := &fakeSource{}
			f.sources[userID] = s
			return s
		},
	}
}

func (f *managerFixtures) engine(userID string) *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[userID]
}

func newTestManager(t *testing.T) (*Manager, *managerFixtures) {
	t.Helper()
	fx := newManagerFixtures()
	m, err := NewManager(ManagerConfig{
		Factories: fx.factories(),
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	return m, fx
}

func TestManager(t *testing.T) {
	ctx := context.Background()

	t.Run("requires all factories", func(t *testing.T) {
		_, err := NewManager(ManagerConfig{})
		require.Error(t, err)
	})

	t.Run("ensure creates and initializes once", func(t *testing.T) {
		m, fx := newTestManager(t)

		c1, err := m.Ensure(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, StateReady, c1.State())

		c2, err := m.Ensure(ctx, "alice")
		require.NoError(t, err)
		assert.Same(t, c1, c2)
		assert.Equal(t, 1, fx.engine("alice").initCount)
	})

	t.Run("ensure requires a user id", func(t *testing.T) {
		m, _ := newTestManager(t)
		_, err := m.Ensure(ctx, "")
		require.Error(t, err)
	})

	t.Run("concurrent ensure yields one container", func(t *testing.T) {
		m, fx := newTestManager(t)

		var wg sync.WaitGroup
		results := make([]*Container, 16)
		for i := range results {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				c, err := m.Ensure(ctx, "bob")
				assert.NoError(t, err)
				results[n] = c
			}(i)
		}
		wg.Wait()

		for _, c := range results[1:] {
			assert.Same(t, results[0], c)
		}
		assert.Equal(t, 1, fx.engine("bob").initCount)
	})

	t.Run("failed initialize is not cached", func(t *testing.T) {
		fx := newManagerFixtures()
		factories := fx.factories()
		fail := true
		origStorage := factories.Storage
		factories.Storage = func(userID string) DataStorage {
			s := origStorage(userID).(*fakeStorage)
			if fail {
				s.initErr = assert.AnError
			}
			return s
		}
		m, err := NewManager(ManagerConfig{Factories: factories, Logger: zap.NewNop()})
		require.NoError(t, err)

		_, err = m.Ensure(ctx, "carol")
		require.Error(t, err)
		_, ok := m.Get("carol")
		assert.False(t, ok)

		fail = false
		c, err := m.Ensure(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, StateReady, c.State())
	})

	t.Run("get returns only existing containers", func(t *testing.T) {
		m, _ := newTestManager(t)
		_, ok := m.Get("nobody")
		assert.False(t, ok)

		c, err := m.Ensure(ctx, "dave")
		require.NoError(t, err)
		got, ok := m.Get("dave")
		require.True(t, ok)
		assert.Same(t, c, got)
	})

	t.Run("users are sorted", func(t *testing.T) {
		m, _ := newTestManager(t)
		for _, u := range []string{"zed", "amy", "mia"} {
			_, err := m.Ensure(ctx, u)
			require.NoError(t, err)
		}
		assert.Equal(t, []string{"amy", "mia", "zed"}, m.Users())
	})

	t.Run("release removes the container", func(t *testing.T) {
		m, fx := newTestManager(t)
		_, err := m.Ensure(ctx, "erin")
		require.NoError(t, err)

		require.NoError(t, m.Release(ctx, "erin"))
		_, ok := m.Get("erin")
		assert.False(t, ok)
		assert.Equal(t, 1, fx.engine("erin").releases())

		// releasing an unknown user is a no-op
		require.NoError(t, m.Release(ctx, "erin"))
	})

	t.Run("release all closes the manager", func(t *testing.T) {
		m, fx := newTestManager(t)
		for _, u := range []string{"u1", "u2", "u3"} {
			_, err := m.Ensure(ctx, u)
			require.NoError(t, err)
		}

		require.NoError(t, m.ReleaseAll(ctx))
		assert.Empty(t, m.Users())
		for _, u := range []string{"u1", "u2", "u3"} {
			assert.Equal(t, 1, fx.engine(u).releases())
		}

		_, err := m.Ensure(ctx, "u4")
		require.ErrorIs(t, err, ErrManagerClosed)
	})
}
