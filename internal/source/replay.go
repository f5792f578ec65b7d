package source

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/praxis-labs/mentat/internal/container"
)

const (
	defaultReplayLimit = 1000
	defaultReplayRate  = 10
)

// ReplayConfig configures a ReplaySource.
type ReplayConfig struct {
	// History is the store the replay reads from. Point the consuming
	// container at a different store: replayed events go through the
	// full pipeline and are persisted again.
	History container.DataStorage

	// UserID selects whose history to replay.
	UserID string

	// Limit caps how many of the newest events are replayed.
	Limit int

	// EventsPerSecond paces the replay.
	EventsPerSecond float64

	// Types optionally restricts the replay to these event types.
	Types []string

	Logger *zap.Logger
}

// ReplaySource replays stored interaction history oldest first at a
// fixed rate, for warming up a fresh model or backtesting. The
// observation ends cleanly once the history is exhausted.
type ReplaySource struct {
	history container.DataStorage
	userID  string
	limit   int
	types   []string
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewReplaySource creates a replay over the configured history.
func NewReplaySource(cfg ReplayConfig) (*ReplaySource, error) {
	if cfg.History == nil {
		return nil, errors.New("source: replay history store is required")
	}
	if cfg.UserID == "" {
		return nil, errors.New("source: replay user id is required")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultReplayLimit
	}
	if cfg.EventsPerSecond <= 0 {
		cfg.EventsPerSecond = defaultReplayRate
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &ReplaySource{
		history: cfg.History,
		userID:  cfg.UserID,
		limit:   cfg.Limit,
		types:   cfg.Types,
		limiter: rate.NewLimiter(rate.Limit(cfg.EventsPerSecond), 1),
		logger:  cfg.Logger,
	}, nil
}

// Observe replays the history into onEvent, paced by the limiter.
func (s *ReplaySource) Observe(ctx context.Context, onEvent func(container.InteractionEvent)) (container.ObservationHandle, error) {
	runCtx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)
	go s.run(runCtx, onEvent, h)
	return h, nil
}

func (s *ReplaySource) run(ctx context.Context, onEvent func(container.InteractionEvent), h *handle) {
	events, err := s.history.LoadRecent(ctx, s.userID, s.limit, s.types...)
	if err != nil {
		h.finish(fmt.Errorf("load replay history: %w", err))
		return
	}

	// LoadRecent is newest first, the replay runs oldest first
	for i := len(events) - 1; i >= 0; i-- {
		if err := s.limiter.Wait(ctx); err != nil {
			h.finish(err)
			return
		}
		onEvent(events[i])
	}

	s.logger.Info("replay finished",
		zap.String("user_id", s.userID),
		zap.Int("events", len(events)))
	h.finish(nil)
}
