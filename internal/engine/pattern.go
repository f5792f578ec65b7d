// Package engine implements the learning engine behind a container: an
// incremental pattern model over interaction event types. It tracks
// type-to-type transition counts plus overall frequencies and predicts
// the most likely next event type. The serialized model is opaque to
// the rest of the system.
package engine

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/praxis-labs/mentat/internal/container"
)

// Prediction categories reported to callers.
const (
	CategoryTransition = "transition"
	CategoryFrequency  = "frequency"
)

const (
	defaultMinConfidence  = 0.1
	defaultMaxTransitions = 4096
)

// ErrEngineReleased is returned by every operation after Release.
var ErrEngineReleased = errors.New("engine: released")

// Config tunes a PatternEngine.
type Config struct {
	// MinConfidence is the floor below which Predict reports absent.
	MinConfidence float32

	// MaxTransitions caps the number of tracked transition pairs; the
	// coldest pair is evicted when the cap is exceeded.
	MaxTransitions int

	Logger *zap.Logger
}

// PatternEngine is a container.LearningEngine built on transition
// counts. All methods are safe for concurrent use.
type PatternEngine struct {
	mu       sync.RWMutex
	model    modelState
	pairs    int
	released bool

	minConfidence  float32
	maxTransitions int
	logger         *zap.Logger
}

// NewPatternEngine creates an engine with a blank model.
func NewPatternEngine(cfg Config) *PatternEngine {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = defaultMinConfidence
	}
	if cfg.MaxTransitions <= 0 {
		cfg.MaxTransitions = defaultMaxTransitions
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &PatternEngine{
		model:          newModelState(),
		minConfidence:  cfg.MinConfidence,
		maxTransitions: cfg.MaxTransitions,
		logger:         cfg.Logger,
	}
}

// Initialize installs a previously saved model, or starts blank when
// none was saved.
func (e *PatternEngine) Initialize(_ context.Context, saved *container.ContainerState) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrEngineReleased
	}
	if saved == nil {
		e.model = newModelState()
		e.pairs = 0
		e.logger.Debug("pattern engine starting blank")
		return nil
	}
	m, err := decodeState(*saved)
	if err != nil {
		return err
	}
	e.model = m
	e.pairs = countPairs(m.Transitions)
	e.logger.Info("pattern engine restored",
		zap.Int64("events_seen", m.TotalEvents),
		zap.Int("transition_pairs", e.pairs))
	return nil
}

// TrainStep folds one event into the model.
func (e *PatternEngine) TrainStep(_ context.Context, event container.InteractionEvent) error {
	if event.Type == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrEngineReleased
	}

	e.model.Frequencies[event.Type]++
	e.model.TotalEvents++

	if from := e.model.LastType; from != "" {
		row := e.model.Transitions[from]
		if row == nil {
			row = make(map[string]int64)
			e.model.Transitions[from] = row
		}
		if _, seen := row[event.Type]; !seen {
			e.pairs++
		}
		row[event.Type]++
		if e.pairs > e.maxTransitions {
			e.evictColdest()
		}
	}
	e.model.LastType = event.Type
	return nil
}

// evictColdest removes the transition pair with the lowest count.
// Caller must hold the write lock.
func (e *PatternEngine) evictColdest() {
	var coldFrom, coldTo string
	var coldCount int64
	for from, row := range e.model.Transitions {
		for to, n := range row {
			if coldFrom == "" || n < coldCount {
				coldFrom, coldTo, coldCount = from, to, n
			}
		}
	}
	if coldFrom == "" {
		return
	}
	delete(e.model.Transitions[coldFrom], coldTo)
	if len(e.model.Transitions[coldFrom]) == 0 {
		delete(e.model.Transitions, coldFrom)
	}
	e.pairs--
}

// Predict suggests the next event type from the recent window. The
// newest non-ignored event anchors a transition lookup; when no
// transition is known the overall frequencies decide. Confidence below
// the configured floor, an empty window or a blank model yield absent.
func (e *PatternEngine) Predict(_ context.Context, recent []container.InteractionEvent, instructions []container.Instruction) (*container.Prediction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.released {
		return nil, ErrEngineReleased
	}

	var current string
	for _, ev := range recent { // newest first
		if !ignored(instructions, ev.Type) {
			current = ev.Type
			break
		}
	}
	if current == "" {
		return nil, nil
	}

	if row := e.model.Transitions[current]; len(row) > 0 {
		var total, bestCount int64
		var best string
		for to, n := range row {
			total += n
			if ignored(instructions, to) {
				continue
			}
			// deterministic tie-break on the type name
			if n > bestCount || (n == bestCount && to < best) {
				best, bestCount = to, n
			}
		}
		if best != "" {
			confidence := float32(bestCount) / float32(total)
			if confidence >= e.minConfidence {
				return &container.Prediction{
					Suggestion: best,
					Confidence: confidence,
					Category:   CategoryTransition,
				}, nil
			}
		}
	}

	if e.model.TotalEvents == 0 {
		return nil, nil
	}
	var bestCount int64
	var best string
	for typ, n := range e.model.Frequencies {
		if ignored(instructions, typ) {
			continue
		}
		if n > bestCount || (n == bestCount && typ < best) {
			best, bestCount = typ, n
		}
	}
	if best == "" {
		return nil, nil
	}
	confidence := float32(bestCount) / float32(e.model.TotalEvents)
	if confidence < e.minConfidence {
		return nil, nil
	}
	return &container.Prediction{
		Suggestion: best,
		Confidence: confidence,
		Category:   CategoryFrequency,
	}, nil
}

// GetCurrentState serializes the model for persistence.
func (e *PatternEngine) GetCurrentState(_ context.Context) (container.ContainerState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.released {
		return container.ContainerState{}, ErrEngineReleased
	}
	return encodeState(e.model)
}

// Reset discards everything the engine has learned.
func (e *PatternEngine) Reset(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrEngineReleased
	}
	e.model = newModelState()
	e.pairs = 0
	e.logger.Info("pattern engine reset")
	return nil
}

// Release marks the engine unusable and frees the model.
func (e *PatternEngine) Release(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return nil
	}
	e.released = true
	e.model = newModelState()
	e.pairs = 0
	return nil
}

func countPairs(transitions map[string]map[string]int64) int {
	n := 0
	for _, row := range transitions {
		n += len(row)
	}
	return n
}

func ignored(instructions []container.Instruction, eventType string) bool {
	if len(instructions) == 0 {
		return false
	}
	probe := container.InteractionEvent{Type: eventType}
	for _, in := range instructions {
		if in.Matches(probe) {
			return true
		}
	}
	return false
}
