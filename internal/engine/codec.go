package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/praxis-labs/mentat/internal/container"
)

// stateVersion is bumped whenever modelState changes incompatibly.
const stateVersion = 1

// ErrUnsupportedStateVersion is returned when a saved state was written
// by an incompatible engine version.
var ErrUnsupportedStateVersion = errors.New("engine: unsupported state version")

// modelState is the serialized form of the pattern model. The payload
// handed to the container is opaque: JSON compressed with zstd.
type modelState struct {
	Transitions map[string]map[string]int64 `json:"transitions"`
	Frequencies map[string]int64            `json:"frequencies"`
	LastType    string                      `json:"last_type"`
	TotalEvents int64                       `json:"total_events"`
}

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	encoderErr  error

	decoderOnce sync.Once
	decoder     *zstd.Decoder
	decoderErr  error
)

func getEncoder() (*zstd.Encoder, error) {
	encoderOnce.Do(func() {
		encoder, encoderErr = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
	})
	return encoder, encoderErr
}

func getDecoder() (*zstd.Decoder, error) {
	decoderOnce.Do(func() {
		decoder, decoderErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(64*1024*1024),
		)
	})
	return decoder, decoderErr
}

// encodeState serializes and compresses a model snapshot.
func encodeState(m modelState) (container.ContainerState, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return container.ContainerState{}, fmt.Errorf("failed to marshal model state: %w", err)
	}
	enc, err := getEncoder()
	if err != nil {
		return container.ContainerState{}, fmt.Errorf("failed to get encoder: %w", err)
	}
	return container.ContainerState{
		Payload: enc.EncodeAll(raw, make([]byte, 0, len(raw))),
		Version: stateVersion,
	}, nil
}

// decodeState restores a model snapshot from a saved state. An empty
// payload yields a blank model.
func decodeState(state container.ContainerState) (modelState, error) {
	if state.Version != stateVersion {
		return modelState{}, fmt.Errorf("%w: got %d, want %d",
			ErrUnsupportedStateVersion, state.Version, stateVersion)
	}
	if len(state.Payload) == 0 {
		return newModelState(), nil
	}
	dec, err := getDecoder()
	if err != nil {
		return modelState{}, fmt.Errorf("failed to get decoder: %w", err)
	}
	raw, err := dec.DecodeAll(state.Payload, nil)
	if err != nil {
		return modelState{}, fmt.Errorf("failed to decompress model state: %w", err)
	}
	var m modelState
	if err := json.Unmarshal(raw, &m); err != nil {
		return modelState{}, fmt.Errorf("failed to unmarshal model state: %w", err)
	}
	if m.Transitions == nil {
		m.Transitions = make(map[string]map[string]int64)
	}
	if m.Frequencies == nil {
		m.Frequencies = make(map[string]int64)
	}
	return m, nil
}

func newModelState() modelState {
	return modelState{
		Transitions: make(map[string]map[string]int64),
		Frequencies: make(map[string]int64),
	}
}
