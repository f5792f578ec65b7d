package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the lifecycle state of a container.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateResetting
	StateReleasing
	StateReleased
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateResetting:
		return "resetting"
	case StateReleasing:
		return "releasing"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

const defaultRecentLimit = 10

// Config carries everything a container needs. Engine, Storage and
// Source are injected by the caller; the container never constructs
// its own capabilities.
type Config struct {
	// UserID scopes all storage and learning to one user.
	UserID string

	Engine  LearningEngine
	Storage DataStorage
	Source  DataSource

	// Scope is the long-lived context the observation task and the
	// per-event tasks run under. The container derives child contexts
	// from it and never cancels it.
	Scope context.Context

	// Instructions is the initial instruction list, may be empty.
	Instructions []Instruction

	// RecentLimit is the interaction window handed to Predict.
	RecentLimit int

	Logger  *zap.Logger
	Metrics *Metrics
}

// Validate checks that the required fields are set.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("container config: user id is required")
	}
	if c.Engine == nil {
		return fmt.Errorf("container config: learning engine is required")
	}
	if c.Storage == nil {
		return fmt.Errorf("container config: data storage is required")
	}
	if c.Source == nil {
		return fmt.Errorf("container config: data source is required")
	}
	if c.RecentLimit < 0 {
		return fmt.Errorf("container config: recent limit must not be negative")
	}
	return nil
}

// ApplyDefaults fills in defaults for optional fields.
func (c *Config) ApplyDefaults() {
	if c.Scope == nil {
		c.Scope = context.Background()
	}
	if c.RecentLimit == 0 {
		c.RecentLimit = defaultRecentLimit
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics()
	}
}

// Container coordinates one user's learning engine, storage and data
// source. Lifecycle operations (Initialize, Reset, SaveState, Release)
// are serialized by a single mutex; the event pipeline and prediction
// queries run outside it.
type Container struct {
	userID      string
	engine      LearningEngine
	storage     DataStorage
	source      DataSource
	scope       context.Context
	recentLimit int

	logger  *zap.Logger
	metrics *Metrics

	mu    sync.Mutex
	state atomic.Int32

	instructions atomic.Pointer[instructionSet]
	broadcast    *PredictionBroadcast

	obsCancel context.CancelFunc
	obsHandle ObservationHandle
	inflight  sync.WaitGroup
}

// New builds a container in the Uninitialized state. The capabilities
// are not touched until Initialize.
func New(cfg Config) (*Container, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		userID:      cfg.UserID,
		engine:      cfg.Engine,
		storage:     cfg.Storage,
		source:      cfg.Source,
		scope:       cfg.Scope,
		recentLimit: cfg.RecentLimit,
		logger:      cfg.Logger.With(zap.String("user_id", cfg.UserID)),
		metrics:     cfg.Metrics,
		broadcast:   NewPredictionBroadcast(cfg.Logger, cfg.Metrics),
	}
	c.instructions.Store(newInstructionSet(cfg.Instructions))
	c.state.Store(int32(StateUninitialized))
	return c, nil
}

// State returns the current lifecycle state without locking.
func (c *Container) State() State {
	return State(c.state.Load())
}

// UserID returns the user this container belongs to.
func (c *Container) UserID() string {
	return c.userID
}

// Source returns the data source the container observes. Embedding
// surfaces use it to feed events into channel-backed sources.
func (c *Container) Source() DataSource {
	return c.source
}

func (c *Container) setState(s State) {
	c.state.Store(int32(s))
}

// Initialize brings the container to Ready: storage is initialized,
// any saved state is restored into the engine, and the observation
// task is started. Only valid from Uninitialized; a second call
// returns ErrAlreadyInitialized.
func (c *Container) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateReleasing, StateReleased:
		return ErrReleased
	case StateUninitialized:
	default:
		return ErrAlreadyInitialized
	}

	c.setState(StateInitializing)
	start := time.Now()

	if err := c.storage.Initialize(ctx); err != nil {
		c.setState(StateUninitialized)
		return &InitializationError{Stage: "storage", Err: err}
	}

	saved, err := c.storage.LoadState(ctx, c.userID)
	if err != nil {
		c.setState(StateUninitialized)
		return &InitializationError{Stage: "load-state", Err: err}
	}

	if err := c.engine.Initialize(ctx, saved); err != nil {
		c.setState(StateUninitialized)
		return &InitializationError{Stage: "engine", Err: err}
	}

	if err := c.startObservation(); err != nil {
		c.setState(StateUninitialized)
		return &InitializationError{Stage: "observe", Err: err}
	}

	c.setState(StateReady)
	c.metrics.RecordLifecycle("initialize", time.Since(start).Seconds())
	c.logger.Info("container initialized",
		zap.Bool("state_restored", saved != nil))
	return nil
}

// Reset returns the container to a blank Ready state: the observation
// task is stopped and restarted, in-flight events are drained, the
// engine is reset and the user's stored data is deleted. No event
// observed before the reset is processed after it.
func (c *Container) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateReleasing, StateReleased:
		return ErrReleased
	case StateReady:
	default:
		return ErrNotReady
	}

	c.setState(StateResetting)
	start := time.Now()

	c.stopObservation()
	c.inflight.Wait()

	resetErr := func() error {
		if err := c.engine.Reset(ctx); err != nil {
			return &EngineError{Op: "reset", Err: err}
		}
		if err := c.storage.DeleteUserData(ctx, c.userID); err != nil {
			return &StorageError{Op: "delete-user-data", Err: err}
		}
		return nil
	}()

	if err := c.startObservation(); err != nil {
		c.logger.Error("observation restart after reset failed", zap.Error(err))
		c.metrics.ObservationFailures.WithLabelValues(c.userID).Inc()
		if resetErr == nil {
			resetErr = &ObservationError{Err: err}
		}
	}

	c.setState(StateReady)
	c.metrics.RecordLifecycle("reset", time.Since(start).Seconds())
	if resetErr != nil {
		c.logger.Error("container reset finished with error", zap.Error(resetErr))
		return resetErr
	}
	c.logger.Info("container reset")
	return nil
}

// SaveState snapshots the engine's current state into storage. The
// observation task keeps running while the snapshot is taken.
func (c *Container) SaveState(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateReleasing, StateReleased:
		return ErrReleased
	case StateReady:
	default:
		return ErrNotReady
	}

	start := time.Now()
	state, err := c.engine.GetCurrentState(ctx)
	if err != nil {
		return &EngineError{Op: "get-state", Err: err}
	}
	if err := c.storage.SaveState(ctx, c.userID, state); err != nil {
		return &StorageError{Op: "save-state", Err: err}
	}

	c.metrics.RecordLifecycle("save_state", time.Since(start).Seconds())
	c.logger.Debug("container state saved",
		zap.Int("payload_bytes", len(state.Payload)),
		zap.Int("version", state.Version))
	return nil
}

// Release permanently shuts the container down: the observation task
// is stopped, in-flight events are drained, and both capabilities are
// released exactly once. Valid from any state; a second call is a
// no-op returning nil. The scope context supplied at construction is
// never cancelled.
func (c *Container) Release(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() == StateReleased {
		return nil
	}

	c.setState(StateReleasing)
	start := time.Now()

	c.stopObservation()
	c.inflight.Wait()
	c.broadcast.Close()

	var firstErr error
	if err := c.engine.Release(ctx); err != nil {
		firstErr = &EngineError{Op: "release", Err: err}
	}
	if err := c.storage.Release(ctx); err != nil && firstErr == nil {
		firstErr = &StorageError{Op: "release", Err: err}
	}

	c.setState(StateReleased)
	c.metrics.RecordLifecycle("release", time.Since(start).Seconds())
	if firstErr != nil {
		c.logger.Error("container released with error", zap.Error(firstErr))
		return firstErr
	}
	c.logger.Info("container released")
	return nil
}

// GetPrediction computes a prediction from the recent interaction
// window on demand. The result is also published to subscribers. A
// capability failure yields an absent prediction, not an error; errors
// are reserved for lifecycle misuse.
func (c *Container) GetPrediction(ctx context.Context) (*Prediction, error) {
	switch c.State() {
	case StateReleasing, StateReleased:
		return nil, ErrReleased
	case StateReady:
	default:
		return nil, ErrNotReady
	}

	snapshot := c.instructions.Load()

	recent, err := c.storage.LoadRecent(ctx, c.userID, c.recentLimit)
	if err != nil {
		c.logger.Warn("prediction query: load recent failed", zap.Error(err))
		c.metrics.RecordPipelineError(c.userID, "load-recent")
		c.publish(nil)
		return nil, nil
	}

	pred, err := c.engine.Predict(ctx, recent, snapshot.List())
	if err != nil {
		c.logger.Warn("prediction query: predict failed", zap.Error(err))
		c.metrics.RecordPipelineError(c.userID, "predict")
		c.publish(nil)
		return nil, nil
	}

	c.publish(pred)
	return pred, nil
}

// UpdateInstructions atomically replaces the active instruction list.
// Events already dispatched keep the snapshot they were dispatched
// with; only later events see the new list.
func (c *Container) UpdateInstructions(list []Instruction) {
	c.instructions.Store(newInstructionSet(list))
	c.logger.Info("instructions updated", zap.Int("count", len(list)))
}

// Instructions returns a copy of the active instruction list.
func (c *Container) Instructions() []Instruction {
	return c.instructions.Load().List()
}

// SubscribePredictions attaches a new prediction subscriber. Only
// values published after the call are delivered; the returned cancel
// function detaches the subscriber and closes the channel.
func (c *Container) SubscribePredictions() (<-chan *Prediction, func()) {
	return c.broadcast.Subscribe()
}

// startObservation starts the source observation task under a child
// of the scope context. Caller must hold the lifecycle mutex.
func (c *Container) startObservation() error {
	obsCtx, cancel := context.WithCancel(c.scope)
	handle, err := c.source.Observe(obsCtx, c.dispatch)
	if err != nil {
		cancel()
		return err
	}
	c.obsCancel = cancel
	c.obsHandle = handle
	go c.watchObservation(handle)
	return nil
}

// stopObservation cancels the observation task and waits for it to
// finish. Caller must hold the lifecycle mutex.
func (c *Container) stopObservation() {
	if c.obsHandle == nil {
		return
	}
	c.obsCancel()
	<-c.obsHandle.Done()
	c.obsCancel = nil
	c.obsHandle = nil
}

// watchObservation reports an observation task that ended on its own.
// The task is not restarted; the container stays Ready and serves
// queries from what it has already learned.
func (c *Container) watchObservation(handle ObservationHandle) {
	<-handle.Done()
	err := handle.Err()
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	c.logger.Error("observation stream failed", zap.Error(err))
	c.metrics.ObservationFailures.WithLabelValues(c.userID).Inc()
}
