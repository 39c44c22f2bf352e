package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fluxmetric/pulse/internal/engine"
	"github.com/fluxmetric/pulse/internal/insight"
)

func newTestServer(t *testing.T, opts engine.Options) *Server {
	t.Helper()

	opts.Logger = zap.NewNop()
	eng, err := engine.New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close(context.Background()) })

	return NewServer(eng, 0, zap.NewNop())
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, engine.Options{})

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_DataPointsAndTrends(t *testing.T) {
	s := newTestServer(t, engine.Options{})

	for i := 0; i < 20; i++ {
		payload, _ := json.Marshal(dataPointRequest{Metric: "cpu_usage", Value: float64(10 + i*2)})
		rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/v1/datapoints", payload)
		require.Equal(t, http.StatusAccepted, rec.Code)
		time.Sleep(time.Millisecond)
	}

	t.Run("trend list includes the metric", func(t *testing.T) {
		rec, body := doJSON(t, s.Handler(), http.MethodGet, "/v1/trends", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		trends := body["trends"].(map[string]any)
		assert.Contains(t, trends, "cpu_usage")
	})

	t.Run("trend detail carries points and analysis", func(t *testing.T) {
		rec, body := doJSON(t, s.Handler(), http.MethodGet, "/v1/trends/cpu_usage", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, body["points"], 20)
		analysis := body["analysis"].(map[string]any)
		assert.Equal(t, "up", analysis["direction"])
		assert.Contains(t, body, "prediction")
	})

	t.Run("unknown metric is 404", func(t *testing.T) {
		rec, _ := doJSON(t, s.Handler(), http.MethodGet, "/v1/trends/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad request body is rejected", func(t *testing.T) {
		rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/v1/datapoints", []byte("{"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec, _ = doJSON(t, s.Handler(), http.MethodPost, "/v1/datapoints", []byte(`{"value": 3}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Stats(t *testing.T) {
	s := newTestServer(t, engine.Options{})

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/v1/stats", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "cache")
	assert.Equal(t, "idle", body["sync_state"])
}

func TestServer_Insights(t *testing.T) {
	s := newTestServer(t, engine.Options{
		Insights: insight.Config{
			Thresholds: []insight.Threshold{
				{Metric: "cpu_usage", Warn: 70, Critical: 90, Above: true},
			},
		},
	})

	for i := 0; i < 10; i++ {
		payload, _ := json.Marshal(dataPointRequest{Metric: "cpu_usage", Value: 95})
		doJSON(t, s.Handler(), http.MethodPost, "/v1/datapoints", payload)
		time.Sleep(time.Millisecond)
	}

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/v1/insights", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, body["count"].(float64), float64(1))
}

func TestServer_CacheCleanup(t *testing.T) {
	s := newTestServer(t, engine.Options{})

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/v1/cache/cleanup", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["removed"])
}

func TestServer_Sync(t *testing.T) {
	t.Run("unconfigured sync is 503", func(t *testing.T) {
		s := newTestServer(t, engine.Options{})

		rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/v1/sync", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("successful sync reports the cycle", func(t *testing.T) {
		s := newTestServer(t, engine.Options{Transport: &okTransport{}})

		rec, body := doJSON(t, s.Handler(), http.MethodPost, "/v1/sync", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["success"])
	})
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, engine.Options{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pulse_cache_hits_total")
}

type okTransport struct{}

func (okTransport) Push(ctx context.Context, snapshotID string, payload []byte) error {
	return nil
}
