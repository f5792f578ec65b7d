// Package api exposes the daemon's HTTP surface: per-user container
// operations, a prediction stream, and the usual service endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/praxis-labs/mentat/internal/auth"
	"github.com/praxis-labs/mentat/internal/config"
	"github.com/praxis-labs/mentat/internal/container"
	"github.com/praxis-labs/mentat/internal/docs"
)

// Version is reported by /health and /version.
const Version = "0.1.0"

type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server
	manager    *container.Manager
	auth       *auth.Service
	limiter    *RateLimiter
	metrics    *Metrics
	promScrape http.Handler
	startTime  time.Time
}

// NewServer wires the HTTP surface around a container manager. HTTP
// metrics land on the same registry the container metrics use, so one
// /metrics endpoint scrapes both.
func NewServer(cfg *config.Config, logger *zap.Logger, manager *container.Manager, authSvc *auth.Service, metrics *container.Metrics) *Server {
	s := &Server{
		config:     cfg,
		logger:     logger,
		router:     mux.NewRouter(),
		manager:    manager,
		auth:       authSvc,
		limiter:    NewRateLimiter(0, 0),
		metrics:    NewMetrics(metrics.Registry()),
		promScrape: metrics.Handler(),
		startTime:  time.Now(),
	}

	s.setupRoutes()

	// No WriteTimeout: the predictions stream holds its response open.
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")
	s.router.Handle("/metrics", s.promScrape).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.limiter.Middleware)
	api.HandleFunc("/auth/token", s.handleIssueToken).Methods("POST")

	users := api.PathPrefix("/users/{userID}").Subrouter()
	users.Use(s.auth.Middleware)
	users.HandleFunc("/prediction", s.handleGetPrediction).Methods("GET")
	users.HandleFunc("/predictions/stream", s.handleStreamPredictions).Methods("GET")
	users.HandleFunc("/instructions", s.handleUpdateInstructions).Methods("PUT")
	users.HandleFunc("/events", s.handleIngestEvent).Methods("POST")
	users.HandleFunc("/status", s.handleStatus).Methods("GET")
	users.HandleFunc("/save", s.handleSave).Methods("POST")
	users.HandleFunc("/reset", s.handleReset).Methods("POST")
	users.HandleFunc("/release", s.handleRelease).Methods("POST")

	s.router.HandleFunc("/docs", docs.SwaggerUIHandler()).Methods("GET")
	s.router.HandleFunc("/openapi.json", docs.OpenAPIJSONHandler()).Methods("GET")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"uptime":  time.Since(s.startTime).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := map[string]interface{}{
		"ready":     true,
		"users":     len(s.manager.Users()),
		"memory_mb": getMemoryUsageMB(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ready)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	version := map[string]string{
		"version": Version,
		"go":      runtime.Version(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(version)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

func (s *Server) Start() error {
	s.logger.Info("starting server", zap.Int("port", s.config.Server.Port))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func getMemoryUsageMB() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc / 1024 / 1024
}
