// Package api exposes the analysis engine over a small HTTP surface: a
// health check, the latest analysis report, and the persisted model
// inventory.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/lucid-vigil/threatlens/pkg/modelstore"
	"github.com/lucid-vigil/threatlens/pkg/orchestrator"
)

// Server serves analysis results over HTTP.
type Server struct {
	orch   *orchestrator.Orchestrator
	logger zerolog.Logger
	http   *http.Server
}

// NewServer builds the HTTP server on the given port.
func NewServer(port string, orch *orchestrator.Orchestrator, logger zerolog.Logger) *Server {
	s := &Server{
		orch:   orch,
		logger: logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.healthzHandler)
	mux.HandleFunc("/api/report", s.reportHandler)
	mux.HandleFunc("/api/models", s.modelsHandler)
	mux.HandleFunc("/api/predict", s.predictHandler)

	s.http = &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("API server starting")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// reportHandler returns the latest analysis report, or 404 before the
// first run completes.
func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	report := s.orch.LatestReport()
	if report == nil {
		s.writeError(w, http.StatusNotFound, "no analysis run has completed yet")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	models, err := s.orch.Models()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if models == nil {
		models = make(map[modelstore.Kind][]string)
	}
	s.writeJSON(w, http.StatusOK, models)
}

// predictHandler ranks probable targets for a source/type profile given as
// query parameters, e.g. /api/predict?source=CN&type=DDoS&days=30.
func (s *Server) predictHandler(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	attackType := r.URL.Query().Get("type")
	if source == "" || attackType == "" {
		s.writeError(w, http.StatusBadRequest, "source and type query parameters are required")
		return
	}

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = n
	}

	result := s.orch.Predict(r.Context(), source, attackType, days)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
