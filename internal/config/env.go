package config

import (
	"os"
	"strconv"
)

// LoadFromEnv applies environment overrides on top of a configuration.
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("MENTAT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if level := os.Getenv("MENTAT_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if backend := os.Getenv("MENTAT_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}

	if path := os.Getenv("MENTAT_SQLITE_PATH"); path != "" {
		cfg.Storage.SQLite.Path = path
	}

	// Secrets usually arrive via the environment rather than the file.
	if secret := os.Getenv("MENTAT_JWT_SECRET"); secret != "" {
		cfg.Server.Auth.JWTSecret = secret
	}

	if password := os.Getenv("MENTAT_PG_PASSWORD"); password != "" {
		cfg.Storage.Postgres.Password = password
	}
}

// GetEnvOrDefault returns an environment variable or a fallback value.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
