package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/praxis-labs/mentat/internal/api"
	"github.com/praxis-labs/mentat/internal/auth"
	"github.com/praxis-labs/mentat/internal/config"
	"github.com/praxis-labs/mentat/internal/container"
	"github.com/praxis-labs/mentat/internal/engine"
	"github.com/praxis-labs/mentat/internal/source"
	"github.com/praxis-labs/mentat/internal/storage"
)

func main() {
	configPath := flag.String("config", config.GetEnvOrDefault("MENTAT_CONFIG", ""), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	// Owning storage handle; containers get non-owning views of it.
	store := newStore(cfg, logger)
	if err := store.Initialize(ctx); err != nil {
		logger.Fatal("initialize storage", zap.Error(err))
	}
	logger.Info("storage ready", zap.String("backend", cfg.Storage.Backend))

	authSvc, err := auth.NewService(auth.Config{
		Enabled:   cfg.Server.Auth.Enabled,
		TokenHash: cfg.Server.Auth.TokenBcrypt,
		JWTSecret: cfg.Server.Auth.JWTSecret,
		TokenTTL:  time.Duration(cfg.Server.Auth.TokenTTL),
	})
	if err != nil {
		logger.Fatal("configure auth", zap.Error(err))
	}

	metrics := container.NewMetrics()
	manager, err := container.NewManager(container.ManagerConfig{
		Factories: container.Factories{
			Engine:  engineFactory(cfg, logger),
			Storage: storageFactory(cfg, store),
			Source:  sourceFactory(cfg, store, logger),
		},
		RecentLimit: cfg.Engine.RecentLimit,
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		logger.Fatal("create container manager", zap.Error(err))
	}

	server := api.NewServer(cfg, logger, manager, authSvc, metrics)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
		if err := manager.ReleaseAll(shutdownCtx); err != nil {
			logger.Error("release containers", zap.Error(err))
		}
		if err := store.Release(shutdownCtx); err != nil {
			logger.Error("close storage", zap.Error(err))
		}
		_ = logger.Sync()
		os.Exit(0)
	}()

	fmt.Printf("mentatd listening on :%d (storage=%s source=%s auth=%v)\n",
		cfg.Server.Port, cfg.Storage.Backend, cfg.Source.Kind, cfg.Server.Auth.Enabled)

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func newStore(cfg *config.Config, logger *zap.Logger) container.DataStorage {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		return storage.NewSQLiteStore(cfg.Storage.SQLite.Path)
	case config.BackendPostgres:
		return storage.NewPostgresStore(storage.PostgresConfig{
			Host:     cfg.Storage.Postgres.Host,
			Port:     cfg.Storage.Postgres.Port,
			Database: cfg.Storage.Postgres.Database,
			User:     cfg.Storage.Postgres.User,
			Password: cfg.Storage.Postgres.Password,
			SSLMode:  cfg.Storage.Postgres.SSLMode,
		})
	case config.BackendMemory:
		return storage.NewMemoryStore()
	default:
		// config.Validate rejects anything else
		logger.Fatal("invalid storage backend", zap.String("backend", cfg.Storage.Backend))
		return nil
	}
}

func engineFactory(cfg *config.Config, logger *zap.Logger) func(string) container.LearningEngine {
	return func(userID string) container.LearningEngine {
		return engine.NewPatternEngine(engine.Config{
			MinConfidence:  cfg.Engine.MinConfidence,
			MaxTransitions: cfg.Engine.MaxTransitions,
			Logger:         logger,
		})
	}
}

// storageFactory hands every container a non-owning view of the shared
// store. In replay mode containers write to private memory stores
// instead, so replayed history is not persisted twice.
func storageFactory(cfg *config.Config, store container.DataStorage) func(string) container.DataStorage {
	if cfg.Source.Kind == config.SourceReplay {
		return func(userID string) container.DataStorage {
			return storage.NewMemoryStore()
		}
	}
	return func(userID string) container.DataStorage {
		return storage.Shared(store)
	}
}

func sourceFactory(cfg *config.Config, store container.DataStorage, logger *zap.Logger) func(string) container.DataSource {
	switch cfg.Source.Kind {
	case config.SourceFSWatch:
		return func(userID string) container.DataSource {
			src, err := source.NewFileActivitySource(source.FileActivityConfig{
				Dir:       cfg.Source.FSWatch.Dir,
				Recursive: cfg.Source.FSWatch.Recursive,
				Logger:    logger,
			})
			if err != nil {
				logger.Error("create file activity source",
					zap.String("user_id", userID), zap.Error(err))
				return nil
			}
			return src
		}
	case config.SourceReplay:
		return func(userID string) container.DataSource {
			src, err := source.NewReplaySource(source.ReplayConfig{
				History:         store,
				UserID:          userID,
				EventsPerSecond: cfg.Source.Replay.Rate,
				Logger:          logger,
			})
			if err != nil {
				logger.Error("create replay source",
					zap.String("user_id", userID), zap.Error(err))
				return nil
			}
			return src
		}
	default:
		return func(userID string) container.DataSource {
			return source.NewChannelSource(0)
		}
	}
}
