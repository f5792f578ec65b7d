// Package config holds the daemon configuration, loaded from an
// optional YAML file with environment overrides on top.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Event source kinds.
const (
	SourceChannel = "channel"
	SourceFSWatch = "fswatch"
	SourceReplay  = "replay"
)

// Duration wraps time.Duration for YAML fields written as "30s" or "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Engine  EngineConfig  `yaml:"engine"`
	Source  SourceConfig  `yaml:"source"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Port int        `yaml:"port"`
	Auth AuthConfig `yaml:"auth"`
}

type AuthConfig struct {
	Enabled     bool     `yaml:"enabled"`
	TokenBcrypt string   `yaml:"token_bcrypt"`
	JWTSecret   string   `yaml:"jwt_secret"`
	TokenTTL    Duration `yaml:"ttl"`
}

type StorageConfig struct {
	Backend  string         `yaml:"backend"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type EngineConfig struct {
	RecentLimit    int     `yaml:"recent_limit"`
	MinConfidence  float32 `yaml:"min_confidence"`
	MaxTransitions int     `yaml:"max_transitions"`
}

type SourceConfig struct {
	Kind    string        `yaml:"kind"`
	FSWatch FSWatchConfig `yaml:"fswatch"`
	Replay  ReplayConfig  `yaml:"replay"`
}

type FSWatchConfig struct {
	Dir       string `yaml:"dir"`
	Recursive bool   `yaml:"recursive"`
}

type ReplayConfig struct {
	Rate float64 `yaml:"rate"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Storage: StorageConfig{
			Backend: BackendSQLite,
			SQLite:  SQLiteConfig{Path: "mentat.db"},
			Postgres: PostgresConfig{
				Port:    5432,
				SSLMode: "disable",
			},
		},
		Engine: EngineConfig{
			RecentLimit:    10,
			MinConfidence:  0.1,
			MaxTransitions: 4096,
		},
		Source: SourceConfig{
			Kind:   SourceChannel,
			Replay: ReplayConfig{Rate: 10},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, an optional YAML file
// and environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("sqlite backend requires a path")
		}
	case BackendPostgres:
		if c.Storage.Postgres.Host == "" {
			return fmt.Errorf("postgres backend requires a host")
		}
		if c.Storage.Postgres.Database == "" {
			return fmt.Errorf("postgres backend requires a database")
		}
		if c.Storage.Postgres.User == "" {
			return fmt.Errorf("postgres backend requires a user")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Source.Kind {
	case SourceChannel:
	case SourceFSWatch:
		if c.Source.FSWatch.Dir == "" {
			return fmt.Errorf("fswatch source requires a dir")
		}
	case SourceReplay:
		if c.Source.Replay.Rate <= 0 {
			return fmt.Errorf("replay source requires a positive rate")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}

	if c.Engine.RecentLimit < 0 {
		return fmt.Errorf("engine recent_limit must not be negative")
	}
	if c.Engine.MinConfidence < 0 || c.Engine.MinConfidence > 1 {
		return fmt.Errorf("engine min_confidence must be between 0 and 1")
	}
	if c.Engine.MaxTransitions < 0 {
		return fmt.Errorf("engine max_transitions must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}

	if c.Server.Auth.Enabled {
		if c.Server.Auth.TokenBcrypt == "" {
			return fmt.Errorf("auth requires token_bcrypt")
		}
		if c.Server.Auth.JWTSecret == "" {
			return fmt.Errorf("auth requires jwt_secret")
		}
	}

	return nil
}
