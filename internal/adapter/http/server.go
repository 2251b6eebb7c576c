// Package http exposes the service's REST API alongside the health,
// readiness, and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/incident-cluster-service/internal/domain"
	"github.com/couchcryptid/incident-cluster-service/internal/ingest"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the incident API plus health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	service    *ingest.Service
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(addr string, service *ingest.Service, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		service: service,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/incidents", s.handleListIncidents)
	mux.HandleFunc("GET /api/incidents/{id}", s.handleGetIncident)
	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("POST /api/incidents/{id}/posts", s.handleAddPost)
	mux.HandleFunc("PUT /api/incidents/{id}/status", s.handleSetStatus)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/regenerate", s.handleRegenerate)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	incidents := s.service.ListIncidents(activeOnly, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	incident, err := s.service.GetIncident(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var raw domain.RawClassifiedPost
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.service.Ingest(r.Context(), raw)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if result.IncidentCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

func (s *Server) handleAddPost(w http.ResponseWriter, r *http.Request) {
	var raw domain.RawClassifiedPost
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	incident, err := s.service.AddPostToIncident(r.Context(), r.PathValue("id"), raw)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := domain.ParseStatus(body.Status)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	incident, err := s.service.SetIncidentStatus(r.PathValue("id"), status)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Stats())
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Posts       []domain.RawClassifiedPost `json:"posts"`
		ThresholdKm *float64                   `json:"thresholdKm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	thresholdKm := s.service.ThresholdKm()
	if body.ThresholdKm != nil {
		thresholdKm = *body.ThresholdKm
	}

	meta, err := s.service.RegenerateFromCorpus(r.Context(), body.Posts, thresholdKm)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrRegenerationSuperseded):
			writeError(w, http.StatusConflict, "regeneration superseded by a newer run")
		case errors.Is(err, context.Canceled):
			// The requesting client went away; there is no one to answer.
		default:
			s.writeServiceError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// writeServiceError maps domain errors to HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrIncidentNotFound):
		writeError(w, http.StatusNotFound, "incident not found")
	case errors.Is(err, domain.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "status must be active or resolved")
	case errors.Is(err, domain.ErrDuplicatePost):
		writeError(w, http.StatusConflict, "post already assigned to an incident")
	case errors.Is(err, domain.ErrNotDisasterRelated),
		errors.Is(err, domain.ErrUnresolvableLocation),
		errors.Is(err, domain.ErrMalformedPost):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
