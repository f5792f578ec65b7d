package container

import (
	"time"

	"go.uber.org/zap"
)

// dispatch is the observation callback. It stamps the event, applies
// the instruction snapshot and hands the event to its own goroutine so
// the observation task is never blocked by storage or the engine.
func (c *Container) dispatch(event InteractionEvent) {
	event.UserID = c.userID
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	c.metrics.EventsObserved.WithLabelValues(c.userID).Inc()

	snapshot := c.instructions.Load()
	if snapshot.Ignores(event) {
		c.metrics.EventsIgnored.WithLabelValues(c.userID).Inc()
		c.logger.Debug("event ignored by instruction",
			zap.String("event_type", event.Type))
		return
	}

	c.inflight.Add(1)
	go c.process(event, snapshot)
}

// process runs the per-event pipeline: persist the interaction, issue
// a training step, then predict from the recent window and publish the
// result. Ordering holds within one event only; concurrent events may
// interleave freely. Failures are isolated to the event: a failed save
// aborts it, a failed prediction publishes absent.
func (c *Container) process(event InteractionEvent, snapshot *instructionSet) {
	defer c.inflight.Done()
	ctx := c.scope

	if err := c.storage.SaveInteraction(ctx, event); err != nil {
		c.logger.Error("event pipeline: save interaction failed",
			zap.String("event_type", event.Type),
			zap.Error(err))
		c.metrics.RecordPipelineError(c.userID, "save")
		return
	}

	// Issued after the save completes; runs concurrently with the
	// prediction read below. The engine serializes its own writes.
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if err := c.engine.TrainStep(ctx, event); err != nil {
			c.logger.Error("event pipeline: train step failed",
				zap.String("event_type", event.Type),
				zap.Error(err))
			c.metrics.RecordPipelineError(c.userID, "train")
		}
	}()

	recent, err := c.storage.LoadRecent(ctx, c.userID, c.recentLimit)
	if err != nil {
		c.logger.Error("event pipeline: load recent failed", zap.Error(err))
		c.metrics.RecordPipelineError(c.userID, "load-recent")
		c.publish(nil)
		return
	}

	pred, err := c.engine.Predict(ctx, recent, snapshot.List())
	if err != nil {
		c.logger.Error("event pipeline: predict failed", zap.Error(err))
		c.metrics.RecordPipelineError(c.userID, "predict")
		c.publish(nil)
		return
	}

	c.publish(pred)
}

// publish counts and broadcasts a prediction result. A nil value marks
// an event for which no prediction could be made.
func (c *Container) publish(p *Prediction) {
	c.metrics.RecordPrediction(c.userID, p != nil)
	c.broadcast.Publish(p)
}
