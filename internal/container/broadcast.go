package container

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const subscriberBuffer = 16

// PredictionBroadcast fans out prediction results to any number of
// subscribers. Publishing never blocks the event pipeline: when a
// subscriber's buffer is full the oldest value is dropped to make room.
// A nil value is meaningful and is delivered like any other: it marks
// an event for which no prediction could be made.
type PredictionBroadcast struct {
	mu     sync.RWMutex
	subs   map[string]chan *Prediction
	closed bool

	logger  *zap.Logger
	metrics *Metrics
}

// NewPredictionBroadcast creates an empty broadcast hub.
func NewPredictionBroadcast(logger *zap.Logger, metrics *Metrics) *PredictionBroadcast {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PredictionBroadcast{
		subs:    make(map[string]chan *Prediction),
		logger:  logger,
		metrics: metrics,
	}
}

// Subscribe registers a new subscriber and returns its channel together
// with a cancel function. The channel is closed when the subscriber
// cancels or the hub shuts down. Cancel is safe to call more than once.
func (b *PredictionBroadcast) Subscribe() (<-chan *Prediction, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *Prediction, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := uuid.New().String()
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers a prediction result to every current subscriber.
// Slow subscribers lose their oldest buffered value rather than stall
// the publisher.
func (b *PredictionBroadcast) Publish(p *Prediction) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for id, ch := range b.subs {
		if !send(ch, p) {
			b.logger.Debug("prediction subscriber lagging, dropped oldest",
				zap.String("subscriber_id", id))
			if b.metrics != nil {
				b.metrics.BroadcastDropped.Inc()
			}
		}
	}
}

// send tries a non-blocking delivery. When the buffer is full it evicts
// the oldest value and retries once. Returns false if an eviction was
// needed.
func send(ch chan *Prediction, p *Prediction) bool {
	select {
	case ch <- p:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
	return false
}

// SubscriberCount returns the number of active subscribers.
func (b *PredictionBroadcast) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts down the hub and closes every subscriber channel.
func (b *PredictionBroadcast) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
