package source

import "context"

// handle is the container.ObservationHandle shared by the sources in
// this package. The observation goroutine calls finish exactly once
// before exiting.
type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func newHandle(cancel context.CancelFunc) *handle {
	return &handle{cancel: cancel, done: make(chan struct{})}
}

// Cancel requests cooperative shutdown of the observation task.
func (h *handle) Cancel() { h.cancel() }

// Done is closed when the observation task has fully stopped.
func (h *handle) Done() <-chan struct{} { return h.done }

// Err reports why the task ended. It is nil while the task runs, nil
// after a clean end, context.Canceled after Cancel.
func (h *handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// finish records the exit cause and closes Done. The err write is
// published by the channel close.
func (h *handle) finish(err error) {
	h.err = err
	close(h.done)
}
