package storage

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/praxis-labs/mentat/internal/container"
)

// newTestPostgresStore connects to the database named by the
// MENTAT_TEST_PG_* environment variables, skipping when unset.
func newTestPostgresStore(t *testing.T) container.DataStorage {
	t.Helper()
	host := os.Getenv("MENTAT_TEST_PG_HOST")
	if host == "" {
		t.Skip("MENTAT_TEST_PG_HOST not set, skipping postgres tests")
	}

	port := 5432
	if raw := os.Getenv("MENTAT_TEST_PG_PORT"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		require.NoError(t, err)
		port = parsed
	}
	cfg := PostgresConfig{
		Host:     host,
		Port:     port,
		Database: envOr("MENTAT_TEST_PG_DATABASE", "mentat_test"),
		User:     envOr("MENTAT_TEST_PG_USER", "mentat"),
		Password: os.Getenv("MENTAT_TEST_PG_PASSWORD"),
	}

	store := NewPostgresStore(cfg)
	t.Cleanup(func() { _ = store.Release(context.Background()) })
	return store
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestPostgresStore(t *testing.T) {
	runStorageSuite(t, newTestPostgresStore)
}
