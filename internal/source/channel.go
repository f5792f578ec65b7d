package source

import (
	"context"
	"errors"
	"sync"

	"github.com/praxis-labs/mentat/internal/container"
)

// ErrAlreadyObserving is returned by Observe while a previous
// observation is still active.
var ErrAlreadyObserving = errors.New("source: already observing")

const defaultChannelBuffer = 64

// ChannelSource is an in-process data source fed through Emit. Events
// emitted while nobody observes are dropped, matching a live stream
// with no replay.
type ChannelSource struct {
	buffer int

	mu     sync.Mutex
	active chan container.InteractionEvent
}

// NewChannelSource creates a source with the given buffer size per
// observation.
func NewChannelSource(buffer int) *ChannelSource {
	if buffer <= 0 {
		buffer = defaultChannelBuffer
	}
	return &ChannelSource{buffer: buffer}
}

// Observe starts delivering emitted events to onEvent. Only one
// observation may be active at a time; a cancelled observation can be
// replaced once its handle reports done.
func (s *ChannelSource) Observe(ctx context.Context, onEvent func(container.InteractionEvent)) (container.ObservationHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, ErrAlreadyObserving
	}

	ch := make(chan container.InteractionEvent, s.buffer)
	s.active = ch

	runCtx, cancel := context.WithCancel(ctx)
	h := newHandle(cancel)
	go s.run(runCtx, ch, onEvent, h)
	return h, nil
}

func (s *ChannelSource) run(ctx context.Context, ch chan container.InteractionEvent, onEvent func(container.InteractionEvent), h *handle) {
	for {
		select {
		case <-ctx.Done():
			s.clearActive(ch)
			h.finish(ctx.Err())
			return
		case ev := <-ch:
			onEvent(ev)
		}
	}
}

func (s *ChannelSource) clearActive(ch chan container.InteractionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == ch {
		s.active = nil
	}
}

// Emit hands an event to the active observation, blocking while its
// buffer is full. Without an active observation the event is dropped.
func (s *ChannelSource) Emit(ctx context.Context, event container.InteractionEvent) error {
	s.mu.Lock()
	ch := s.active
	s.mu.Unlock()

	if ch == nil {
		return nil
	}
	select {
	case ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
