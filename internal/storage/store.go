// Package storage provides the persistence backends a container works
// against: a local SQLite file, a PostgreSQL database for deployments,
// and an in-memory store for tests and embedding. All backends keep
// the same two-table layout: one row of opaque engine state per user
// and an append-only interaction log.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotInitialized is returned when a store is used before
	// Initialize.
	ErrNotInitialized = errors.New("storage: store is not initialized")

	// ErrStoreClosed is returned when a store is used after Release.
	ErrStoreClosed = errors.New("storage: store is closed")
)

// encodeAttributes serializes event attributes for the details column.
func encodeAttributes(attrs map[string]string) ([]byte, error) {
	if len(attrs) == 0 {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	return raw, nil
}

// decodeAttributes restores event attributes from the details column.
// Empty details yield a nil map.
func decodeAttributes(raw []byte) (map[string]string, error) {
	if len(raw) == 0 || string(raw) == "{}" || string(raw) == "null" {
		return nil, nil
	}
	var attrs map[string]string
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}
