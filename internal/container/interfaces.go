package container

import "context"

// LearningEngine is the pluggable training/inference capability a
// container coordinates. Implementations must be safe for concurrent
// calls from multiple event-processing tasks.
type LearningEngine interface {
	// Initialize prepares the engine, restoring from saved state when one
	// is supplied. A nil saved state means "start blank".
	Initialize(ctx context.Context, saved *ContainerState) error

	// TrainStep folds one event into the model incrementally.
	TrainStep(ctx context.Context, event InteractionEvent) error

	// Predict derives a suggestion from recent history, honoring the
	// instruction snapshot. A nil prediction with nil error means "no
	// confident prediction".
	Predict(ctx context.Context, recent []InteractionEvent, instructions []Instruction) (*Prediction, error)

	// GetCurrentState serializes the engine's knowledge into an opaque,
	// versioned snapshot.
	GetCurrentState(ctx context.Context) (ContainerState, error)

	// Reset discards all learned state, returning the engine to blank.
	Reset(ctx context.Context) error

	// Release frees engine resources. Further calls on the engine fail.
	Release(ctx context.Context) error
}

// DataStorage persists engine state and interaction history.
// Implementations must be safe for concurrent use and must tolerate
// repeated Initialize calls.
type DataStorage interface {
	// Initialize prepares the backing store (schema, connections).
	Initialize(ctx context.Context) error

	// SaveState upserts the serialized engine state for a user.
	SaveState(ctx context.Context, userID string, state ContainerState) error

	// LoadState returns the stored state for a user, or (nil, nil) when
	// none has been saved yet.
	LoadState(ctx context.Context, userID string) (*ContainerState, error)

	// SaveInteraction appends one event to the user's history.
	SaveInteraction(ctx context.Context, event InteractionEvent) error

	// LoadRecent returns up to limit events for the user, newest first,
	// optionally restricted to the given event types.
	LoadRecent(ctx context.Context, userID string, limit int, eventTypes ...string) ([]InteractionEvent, error)

	// DeleteUserData removes the user's state and history.
	DeleteUserData(ctx context.Context, userID string) error

	// Release closes the store's resources.
	Release(ctx context.Context) error
}

// DataSource emits a live stream of interaction events. Observe starts
// delivery of events to onEvent and returns a handle for cooperative
// cancellation; after the handle reports done, no further callbacks are
// made. A source supports at most one active observation at a time, but
// may be observed again after the previous observation stopped.
type DataSource interface {
	Observe(ctx context.Context, onEvent func(InteractionEvent)) (ObservationHandle, error)
}

// ObservationHandle controls one running observation.
type ObservationHandle interface {
	// Cancel requests a cooperative stop. Safe to call more than once.
	Cancel()
	// Done is closed once the observation has fully stopped and no more
	// onEvent callbacks will be made.
	Done() <-chan struct{}
	// Err reports why the observation ended: nil after a clean stop,
	// context.Canceled after Cancel, otherwise the terminal stream
	// error.
	Err() error
}
