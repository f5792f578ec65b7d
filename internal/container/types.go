package container

import "time"

// InteractionEvent is a single observed user interaction. Events are
// immutable once created: producers build them, consumers only read.
type InteractionEvent struct {
	// Type categorizes the interaction, e.g. "command.run" or "file.created".
	Type string `json:"type"`
	// Attributes carries free-form string details (paths, names, flags).
	Attributes map[string]string `json:"attributes,omitempty"`
	// Timestamp is the event time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
	// UserID identifies the container the event belongs to.
	UserID string `json:"user_id"`
}

// NewInteractionEvent builds an event stamped with the current time.
func NewInteractionEvent(userID, eventType string, attributes map[string]string) InteractionEvent {
	return InteractionEvent{
		Type:       eventType,
		Attributes: attributes,
		Timestamp:  time.Now().UnixMilli(),
		UserID:     userID,
	}
}

// ContainerState is the serialized knowledge of a learning engine. The
// payload is opaque to the container: only the engine that produced it
// can interpret it, the container and storage just move it around.
type ContainerState struct {
	Payload []byte `json:"payload"`
	Version int    `json:"version"`
}

// Prediction is a best-effort suggestion derived from recent activity.
// Absence of a confident prediction is represented by a nil *Prediction,
// both on the broadcast stream and from GetPrediction.
type Prediction struct {
	// Suggestion names the action or event type the engine expects next.
	Suggestion string `json:"suggestion"`
	// Confidence is the engine's normalized certainty in [0, 1].
	Confidence float32 `json:"confidence"`
	// Category labels the inference that produced the suggestion.
	Category string `json:"category"`
}
