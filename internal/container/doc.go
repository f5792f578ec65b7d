// Package container implements the per-user adaptive-learning container:
// a long-lived orchestrator that coordinates a learning engine, a data
// store, and a live event source into one safe, restartable lifecycle.
//
// A Container owns the observation task that drains its DataSource, a
// lifecycle mutex serializing Initialize/Reset/SaveState/Release, and a
// broadcast stream of predictions. The three capabilities it coordinates
// are caller-supplied, non-owning references; the container starts and
// stops only the tasks it launched itself, never the caller's scope.
//
// The hot path (per-event processing) runs outside the lifecycle lock:
// each incoming event is filtered against the current instruction
// snapshot, persisted, fed to the engine as a training step, and turned
// into a fresh prediction published to subscribers. One event's failure
// never terminates observation or affects other events.
package container
