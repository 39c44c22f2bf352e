// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fluxmetric/pulse/internal/engine"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.startTime).String(),
	})
}

// handleStats handles GET /v1/stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.CacheStats()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"cache":      stats,
		"hit_rate":   stats.HitRate(),
		"metrics":    s.engine.MetricNames(),
		"sync_state": s.engine.SyncState(),
	})
}

// handleInsights handles GET /v1/insights
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	s.engine.GenerateInsights(r.Context())
	insights := s.engine.PerformanceInsights(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{
		"insights": insights,
		"count":    len(insights),
	})
}

// handleTrends handles GET /v1/trends
func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	analyses := make(map[string]any)
	for _, metric := range s.engine.MetricNames() {
		if analysis, ok := s.engine.AnalyzeTrend(metric); ok {
			analyses[metric] = analysis
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"trends": analyses})
}

// handleTrendDetail handles GET /v1/trends/{metric}
func (s *Server) handleTrendDetail(w http.ResponseWriter, r *http.Request) {
	metric := chi.URLParam(r, "metric")

	points, ok := s.engine.TrendData(metric)
	if !ok {
		http.Error(w, "unknown metric", http.StatusNotFound)
		return
	}

	body := map[string]any{
		"metric": metric,
		"points": points,
	}
	if analysis, ok := s.engine.AnalyzeTrend(metric); ok {
		body["analysis"] = analysis
	}
	if prediction, ok := s.engine.Predict(metric, 10*time.Minute); ok {
		body["prediction"] = prediction
	}
	if anomalies := s.engine.Anomalies(metric); len(anomalies) > 0 {
		body["anomalies"] = anomalies
	}
	s.writeJSON(w, http.StatusOK, body)
}

type dataPointRequest struct {
	Metric   string            `json:"metric"`
	Value    float64           `json:"value"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// handleAddDataPoint handles POST /v1/datapoints
func (s *Server) handleAddDataPoint(w http.ResponseWriter, r *http.Request) {
	var req dataPointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Metric == "" {
		http.Error(w, "metric is required", http.StatusBadRequest)
		return
	}

	s.engine.AddDataPoint(req.Metric, req.Value, req.Metadata)
	w.WriteHeader(http.StatusAccepted)
}

// handleCacheCleanup handles POST /v1/cache/cleanup
func (s *Server) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	removed := s.engine.CacheCleanup(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

// handleSync handles POST /v1/sync
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.SyncToCloud(r.Context())
	if errors.Is(err, engine.ErrNoTransport) {
		http.Error(w, "sync is not configured", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		s.logger.Error("sync failed", zap.Error(err))
		http.Error(w, "sync failed", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if !result.Skipped && !result.Success {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, result)
}
