package apiserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
)

// defaultPIIPeriodDays is the reporting window when no days parameter is
// given.
const defaultPIIPeriodDays = 30

// handleCacheAnalytics reports per-tier and combined cache statistics.
// Rates are percentages in [0,100].
func (s *Server) handleCacheAnalytics(w http.ResponseWriter, _ *http.Request) {
	stats := s.cache.Stats()

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"l1Hits":         stats.L1.Hits,
		"l1Misses":       stats.L1.Misses,
		"l1HitRate":      stats.L1.HitRate(),
		"l1Size":         stats.L1.Size,
		"l2Hits":         stats.L2.Hits,
		"l2Misses":       stats.L2.Misses,
		"l2HitRate":      stats.L2.HitRate(),
		"totalHits":      stats.TotalHits(),
		"totalMisses":    stats.TotalMisses(),
		"overallHitRate": stats.OverallHitRate(),
	})
}

// handlePIIAnalytics reports detection counts over a trailing window of
// days (?days=N, default 30).
func (s *Server) handlePIIAnalytics(w http.ResponseWriter, r *http.Request) {
	days := defaultPIIPeriodDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeErrorResponse(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	if s.audit == nil {
		s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"totalDetections":  int64(0),
			"periodDays":       days,
			"detectionsByType": map[string]int64{},
		})
		return
	}

	since := time.Now().AddDate(0, 0, -days)
	total, err := s.audit.CountSince(r.Context(), since)
	if err != nil {
		logging.Errorf("pii analytics query failed: %v", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "audit store unavailable")
		return
	}
	byType, err := s.audit.CountsByKind(r.Context(), since)
	if err != nil {
		logging.Errorf("pii analytics query failed: %v", err)
		s.writeErrorResponse(w, http.StatusInternalServerError, "audit store unavailable")
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"totalDetections":  total,
		"periodDays":       days,
		"detectionsByType": byType,
	})
}

// handleModelAnalytics lists every registered model profile.
func (s *Server) handleModelAnalytics(w http.ResponseWriter, _ *http.Request) {
	profiles := s.models.Profiles()

	models := make(map[string]interface{}, len(profiles))
	enabled := 0
	for _, p := range profiles {
		if p.Enabled {
			enabled++
		}
		models[p.ModelID] = map[string]interface{}{
			"displayName": p.DisplayName,
			"provider":    p.Provider,
			"capability":  string(p.Capability),
			"inputCost":   p.InputCostPer1K,
			"outputCost":  p.OutputCostPer1K,
			"maxTokens":   p.MaxContextTokens,
			"enabled":     p.Enabled,
		}
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"totalModels":   len(profiles),
		"enabledModels": enabled,
		"models":        models,
	})
}

// handleAnalyticsSummary is the one-call dashboard payload.
func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	stats := s.cache.Stats()

	var totalDetections int64
	if s.audit != nil {
		since := time.Now().AddDate(0, 0, -defaultPIIPeriodDays)
		n, err := s.audit.CountSince(r.Context(), since)
		if err != nil {
			logging.Errorf("summary audit query failed: %v", err)
		} else {
			totalDetections = n
		}
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":             "HEALTHY",
		"version":            serviceVersion,
		"cacheHitRate":       stats.OverallHitRate(),
		"totalCacheHits":     stats.TotalHits(),
		"totalPIIDetections": totalDetections,
		"availableModels":    len(s.models.EnabledProfiles()),
	})
}

// handleDetailedHealth probes each dependency and reports per-component
// status.
func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	cacheStatus := componentStatus(s.cache.Healthy(r.Context()))
	modelStatus := componentStatus(s.provider != nil && s.provider.Available(r.Context()))

	status := "UP"
	if cacheStatus != "UP" || modelStatus != "UP" {
		status = "DEGRADED"
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":  status,
		"service": serviceName,
		"components": map[string]string{
			"cache":  cacheStatus,
			"models": modelStatus,
		},
	})
}

// handleCacheClear empties both cache tiers.
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear(r.Context())
	logging.Infof("cache cleared via analytics API")

	s.writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Cache cleared successfully",
	})
}

func componentStatus(up bool) string {
	if up {
		return "UP"
	}
	return "DOWN"
}
