// Package apiserver exposes the guarded completion pipeline and its
// analytics over HTTP.
package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mdkashifakram/LLMGuardian/pkg/audit"
	"github.com/mdkashifakram/LLMGuardian/pkg/cache"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
	"github.com/mdkashifakram/LLMGuardian/pkg/pipeline"
	"github.com/mdkashifakram/LLMGuardian/pkg/provider"
	"github.com/mdkashifakram/LLMGuardian/pkg/routing"
)

const (
	serviceName    = "LLMGuardian"
	serviceVersion = "1.0.0"
)

// Options carries the wired components the server fronts.
type Options struct {
	Processor *pipeline.Processor
	Cache     *cache.Manager
	// Audit may be nil when auditing is disabled; PII analytics then
	// report zero detections.
	Audit    *audit.Store
	Models   *routing.Registry
	Provider provider.Provider

	// Zero timeouts fall back to 30s read, 120s write and 60s idle.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is the HTTP front end.
type Server struct {
	processor *pipeline.Processor
	cache     *cache.Manager
	audit     *audit.Store
	models    *routing.Registry
	provider  provider.Provider

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	httpServer *http.Server
}

// New builds a server around already-wired components.
func New(opts Options) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 120 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 60 * time.Second
	}
	return &Server{
		processor:    opts.Processor,
		cache:        opts.Cache,
		audit:        opts.Audit,
		models:       opts.Models,
		provider:     opts.Provider,
		readTimeout:  opts.ReadTimeout,
		writeTimeout: opts.WriteTimeout,
		idleTimeout:  opts.IdleTimeout,
	}
}

// Handler returns the route table without binding a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start serves HTTP on the given port until Shutdown or a listener error.
func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.setupRoutes(),
		// The write timeout must outlive a full provider retry cycle.
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	logging.Infof("API server listening on port %d", port)
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/completions", s.handleCompletion)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	mux.HandleFunc("GET /api/v1/analytics/cache", s.handleCacheAnalytics)
	mux.HandleFunc("GET /api/v1/analytics/pii", s.handlePIIAnalytics)
	mux.HandleFunc("GET /api/v1/analytics/models", s.handleModelAnalytics)
	mux.HandleFunc("GET /api/v1/analytics/summary", s.handleAnalyticsSummary)
	mux.HandleFunc("GET /api/v1/analytics/health", s.handleDetailedHealth)
	mux.HandleFunc("POST /api/v1/analytics/cache/clear", s.handleCacheClear)

	return mux
}

// handleCompletion runs one query through the guarded pipeline.
func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := s.parseJSONRequest(r, &req); err != nil {
		s.writeCompletionError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.validate(); err != nil {
		s.writeCompletionError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.processor.Process(r.Context(), req.toPipeline())

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	s.writeJSONResponse(w, status, completionResponseFrom(result))
}

// handleHealth answers liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":  "UP",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// Helper methods for JSON handling.
func (s *Server) parseJSONRequest(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Errorf("Failed to encode JSON response: %v", err)
	}
}

// writeCompletionError reports a rejected completion in the same shape a
// failed pipeline run uses.
func (s *Server) writeCompletionError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSONResponse(w, statusCode, CompletionResponse{
		Success:   false,
		Error:     message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// writeErrorResponse is the generic error shape for the analytics routes.
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error": map[string]interface{}{
			"message":   message,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}
