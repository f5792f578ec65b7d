package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mentat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, SourceChannel, cfg.Source.Kind)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad(t *testing.T) {
	t.Run("no file keeps defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 9000
  auth:
    enabled: true
    token_bcrypt: "$2a$10$hash"
    jwt_secret: sekrit
    ttl: 2h
storage:
  backend: memory
engine:
  recent_limit: 25
  min_confidence: 0.3
source:
  kind: fswatch
  fswatch:
    dir: /tmp
    recursive: true
logging:
  level: debug
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.True(t, cfg.Server.Auth.Enabled)
		assert.Equal(t, 2*time.Hour, time.Duration(cfg.Server.Auth.TokenTTL))
		assert.Equal(t, BackendMemory, cfg.Storage.Backend)
		assert.Equal(t, 25, cfg.Engine.RecentLimit)
		assert.InDelta(t, 0.3, cfg.Engine.MinConfidence, 0.0001)
		assert.Equal(t, SourceFSWatch, cfg.Source.Kind)
		assert.True(t, cfg.Source.FSWatch.Recursive)
		assert.Equal(t, "debug", cfg.Logging.Level)

		// untouched sections keep their defaults
		assert.Equal(t, 4096, cfg.Engine.MaxTransitions)
		assert.Equal(t, "mentat.db", cfg.Storage.SQLite.Path)
	})

	t.Run("rejects a bad duration", func(t *testing.T) {
		path := writeConfig(t, "server:\n  auth:\n    ttl: soon\n")
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("rejects invalid yaml", func(t *testing.T) {
		path := writeConfig(t, "server: [")
		_, err := Load(path)
		require.Error(t, err)
	})

	t.Run("environment wins over file", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 9000\nlogging:\n  level: warn\n")
		t.Setenv("MENTAT_PORT", "7777")
		t.Setenv("MENTAT_LOG_LEVEL", "error")
		t.Setenv("MENTAT_STORAGE_BACKEND", "memory")
		t.Setenv("MENTAT_JWT_SECRET", "from-env")
		t.Setenv("MENTAT_PG_PASSWORD", "pg-secret")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7777, cfg.Server.Port)
		assert.Equal(t, "error", cfg.Logging.Level)
		assert.Equal(t, BackendMemory, cfg.Storage.Backend)
		assert.Equal(t, "from-env", cfg.Server.Auth.JWTSecret)
		assert.Equal(t, "pg-secret", cfg.Storage.Postgres.Password)
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"port too small":          func(c *Config) { c.Server.Port = 0 },
		"port too large":          func(c *Config) { c.Server.Port = 70000 },
		"unknown backend":         func(c *Config) { c.Storage.Backend = "etcd" },
		"sqlite without path":     func(c *Config) { c.Storage.SQLite.Path = "" },
		"postgres without host":   func(c *Config) { c.Storage.Backend = BackendPostgres },
		"unknown source":          func(c *Config) { c.Source.Kind = "kafka" },
		"fswatch without dir":     func(c *Config) { c.Source.Kind = SourceFSWatch },
		"replay without rate":     func(c *Config) { c.Source.Kind = SourceReplay; c.Source.Replay.Rate = 0 },
		"negative recent limit":   func(c *Config) { c.Engine.RecentLimit = -1 },
		"confidence above one":    func(c *Config) { c.Engine.MinConfidence = 1.5 },
		"unknown log level":       func(c *Config) { c.Logging.Level = "loud" },
		"auth without token hash": func(c *Config) { c.Server.Auth.Enabled = true; c.Server.Auth.JWTSecret = "s" },
		"auth without jwt secret": func(c *Config) { c.Server.Auth.Enabled = true; c.Server.Auth.TokenBcrypt = "h" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
