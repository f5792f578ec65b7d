package container

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrManagerClosed is returned by Ensure after ReleaseAll.
var ErrManagerClosed = errors.New("container: manager closed")

// Factories build the per-user capabilities a new container is wired
// with. All three are required.
type Factories struct {
	Engine  func(userID string) LearningEngine
	Storage func(userID string) DataStorage
	Source  func(userID string) DataSource
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Factories Factories

	// Scope is handed to every container; it outlives individual
	// containers and is owned by the caller.
	Scope context.Context

	// Instructions is the initial instruction list for new containers.
	Instructions []Instruction

	RecentLimit int
	Logger      *zap.Logger
	Metrics     *Metrics
}

// Manager owns one container per user. All daemon-facing access goes
// through it.
type Manager struct {
	mu         sync.RWMutex
	containers map[string]*Container
	closed     bool

	factories    Factories
	scope        context.Context
	instructions []Instruction
	recentLimit  int
	logger       *zap.Logger
	metrics      *Metrics
}

// NewManager creates an empty manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Factories.Engine == nil || cfg.Factories.Storage == nil || cfg.Factories.Source == nil {
		return nil, fmt.Errorf("container manager: all capability factories are required")
	}
	if cfg.Scope == nil {
		cfg.Scope = context.Background()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}

	return &Manager{
		containers:   make(map[string]*Container),
		factories:    cfg.Factories,
		scope:        cfg.Scope,
		instructions: cfg.Instructions,
		recentLimit:  cfg.RecentLimit,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}, nil
}

// Ensure returns the container for a user, creating and initializing
// it on first use.
func (m *Manager) Ensure(ctx context.Context, userID string) (*Container, error) {
	if userID == "" {
		return nil, fmt.Errorf("container manager: user id is required")
	}

	m.mu.RLock()
	c, ok := m.containers[userID]
	closed := m.closed
	m.mu.RUnlock()
	if ok {
		return c, nil
	}
	if closed {
		return nil, ErrManagerClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if c, ok := m.containers[userID]; ok {
		return c, nil
	}

	c, err := New(Config{
		UserID:       userID,
		Engine:       m.factories.Engine(userID),
		Storage:      m.factories.Storage(userID),
		Source:       m.factories.Source(userID),
		Scope:        m.scope,
		Instructions: m.instructions,
		RecentLimit:  m.recentLimit,
		Logger:       m.logger,
		Metrics:      m.metrics,
	})
	if err != nil {
		return nil, err
	}
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}

	m.containers[userID] = c
	m.metrics.ActiveContainers.Inc()
	m.logger.Info("container created", zap.String("user_id", userID))
	return c, nil
}

// Get returns the container for a user if one exists.
func (m *Manager) Get(userID string) (*Container, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.containers[userID]
	return c, ok
}

// Users returns the user ids with an active container, sorted.
func (m *Manager) Users() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]string, 0, len(m.containers))
	for id := range m.containers {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// Release releases one user's container and removes it. Unknown users
// are a no-op.
func (m *Manager) Release(ctx context.Context, userID string) error {
	m.mu.Lock()
	c, ok := m.containers[userID]
	if ok {
		delete(m.containers, userID)
		m.metrics.ActiveContainers.Dec()
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return c.Release(ctx)
}

// ReleaseAll releases every container and closes the manager. The
// first release error is returned after all containers were attempted.
func (m *Manager) ReleaseAll(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	containers := make([]*Container, 0, len(m.containers))
	for id, c := range m.containers {
		containers = append(containers, c)
		delete(m.containers, id)
		m.metrics.ActiveContainers.Dec()
	}
	m.mu.Unlock()

	var firstErr error
	for _, c := range containers {
		if err := c.Release(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.logger.Info("all containers released", zap.Int("count", len(containers)))
	return firstErr
}
