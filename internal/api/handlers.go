package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/praxis-labs/mentat/internal/auth"
	"github.com/praxis-labs/mentat/internal/container"
	"github.com/praxis-labs/mentat/internal/instructions"
)

const (
	maxBodyBytes      = 1 << 20
	heartbeatInterval = 15 * time.Second
)

// eventSink is what a source must implement for the events endpoint.
// Channel-backed sources do; watchers and replays do not.
type eventSink interface {
	Emit(ctx context.Context, event container.InteractionEvent) error
}

// predictionEnvelope is the wire form shared by the prediction query
// and the prediction stream. A null prediction means the engine had
// nothing confident to say.
type predictionEnvelope struct {
	Prediction *container.Prediction `json:"prediction"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.AccessToken == "" || req.UserID == "" {
		http.Error(w, "access_token and user_id are required", http.StatusBadRequest)
		return
	}

	token, expires, err := s.auth.IssueToken(req.AccessToken, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			http.Error(w, "invalid access token", http.StatusUnauthorized)
		case errors.Is(err, auth.ErrDisabled):
			http.Error(w, "authentication is disabled", http.StatusBadRequest)
		default:
			s.logger.Error("token mint failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"token":      token,
		"expires_at": expires.Format(time.RFC3339),
	})
}

// ensureContainer materializes the user's container on first touch.
func (s *Server) ensureContainer(w http.ResponseWriter, r *http.Request) (*container.Container, bool) {
	userID := mux.Vars(r)["userID"]
	c, err := s.manager.Ensure(r.Context(), userID)
	if err != nil {
		s.writeContainerError(w, err)
		return nil, false
	}
	return c, true
}

// getContainer looks up an existing container without creating one.
func (s *Server) getContainer(w http.ResponseWriter, r *http.Request) (*container.Container, bool) {
	userID := mux.Vars(r)["userID"]
	c, ok := s.manager.Get(userID)
	if !ok {
		http.Error(w, "unknown user", http.StatusNotFound)
		return nil, false
	}
	return c, true
}

func (s *Server) writeContainerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, container.ErrNotReady):
		http.Error(w, "container is not ready", http.StatusConflict)
	case errors.Is(err, container.ErrReleased):
		http.Error(w, "container is released", http.StatusGone)
	case errors.Is(err, container.ErrManagerClosed):
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
	default:
		s.logger.Error("container operation failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	c, ok := s.ensureContainer(w, r)
	if !ok {
		return
	}

	pred, err := c.GetPrediction(r.Context())
	if err != nil {
		s.writeContainerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(predictionEnvelope{Prediction: pred})
}

func (s *Server) handleStreamPredictions(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	c, ok := s.ensureContainer(w, r)
	if !ok {
		return
	}

	ch, cancel := c.SubscribePredictions()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case pred, open := <-ch:
			if !open {
				// container released
				return
			}
			data, err := json.Marshal(predictionEnvelope{Prediction: pred})
			if err != nil {
				s.logger.Error("encode prediction event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: prediction\ndata: %s\n\n", data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleUpdateInstructions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	parsed, err := instructions.Parse(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, ok := s.ensureContainer(w, r)
	if !ok {
		return
	}
	c.UpdateInstructions(parsed)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"applied": len(parsed)})
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type       string            `json:"type"`
		Attributes map[string]string `json:"attributes"`
		Timestamp  int64             `json:"timestamp"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "event type is required", http.StatusBadRequest)
		return
	}

	c, ok := s.ensureContainer(w, r)
	if !ok {
		return
	}

	sink, ok := c.Source().(eventSink)
	if !ok {
		http.Error(w, "event source does not accept events", http.StatusConflict)
		return
	}

	event := container.InteractionEvent{
		Type:       req.Type,
		Attributes: req.Attributes,
		Timestamp:  req.Timestamp,
	}
	if err := sink.Emit(r.Context(), event); err != nil {
		s.logger.Error("event ingest failed", zap.Error(err))
		http.Error(w, "event not accepted", http.StatusInternalServerError)
		return
	}

	ingestID := uuid.NewString()
	s.logger.Debug("event accepted",
		zap.String("user_id", c.UserID()),
		zap.String("type", req.Type),
		zap.String("ingest_id", ingestID),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "accepted",
		"ingest_id": ingestID,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := s.getContainer(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"user_id": c.UserID(),
		"state":   c.State().String(),
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	c, ok := s.getContainer(w, r)
	if !ok {
		return
	}

	if err := c.SaveState(r.Context()); err != nil {
		s.writeContainerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "saved"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	c, ok := s.getContainer(w, r)
	if !ok {
		return
	}

	if err := c.Reset(r.Context()); err != nil {
		s.writeContainerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	if err := s.manager.Release(r.Context(), userID); err != nil {
		s.writeContainerError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
