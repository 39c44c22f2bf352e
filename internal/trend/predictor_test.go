package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxmetric/pulse/internal/series"
)

func TestAnalyzer_Predict(t *testing.T) {
	t.Run("rising series predicts non-decreasing values", func(t *testing.T) {
		buf := series.NewBuffer(100)
		feed(buf, "queue_depth", rising(20))
		analyzer := newTestAnalyzer(buf)

		prediction, ok := analyzer.Predict("queue_depth", time.Minute)

		require.True(t, ok)
		assert.Equal(t, BasisLinear, prediction.Basis)
		require.NotEmpty(t, prediction.PredictedValues)
		for i := 1; i < len(prediction.PredictedValues); i++ {
			assert.GreaterOrEqual(t,
				prediction.PredictedValues[i].Value,
				prediction.PredictedValues[i-1].Value)
		}
	})

	t.Run("forecast timestamps stay inside the horizon", func(t *testing.T) {
		buf := series.NewBuffer(100)
		feed(buf, "cpu", rising(10))
		analyzer := newTestAnalyzer(buf)

		horizon := 30 * time.Second
		prediction, ok := analyzer.Predict("cpu", horizon)

		require.True(t, ok)
		last := prediction.PredictedValues[len(prediction.PredictedValues)-1]
		assert.WithinDuration(t, time.Now().Add(horizon), last.Timestamp, 2*time.Second)
	})

	t.Run("volatile series falls back to smoothing", func(t *testing.T) {
		buf := series.NewBuffer(100)
		// Sawtooth with no real direction: large residuals against any line
		feed(buf, "jitter", []float64{
			10, 90, 5, 95, 12, 88, 8, 92, 11, 87,
			9, 93, 6, 94, 10, 90, 7, 91, 12, 89,
		})
		analyzer := newTestAnalyzer(buf)

		prediction, ok := analyzer.Predict("jitter", time.Minute)

		require.True(t, ok)
		assert.Equal(t, BasisExpSmoothing, prediction.Basis)

		// Smoothing forecasts a level, not a runaway extrapolation
		for _, p := range prediction.PredictedValues {
			assert.Greater(t, p.Value, 0.0)
			assert.Less(t, p.Value, 100.0)
		}
	})

	t.Run("interval widens with distance", func(t *testing.T) {
		buf := series.NewBuffer(100)
		feed(buf, "latency", []float64{
			50, 55, 48, 60, 52, 58, 47, 61, 53, 57,
			49, 62, 51, 56, 50, 59, 48, 60, 52, 58,
		})
		analyzer := newTestAnalyzer(buf)

		prediction, ok := analyzer.Predict("latency", time.Minute)

		require.True(t, ok)
		require.NotEmpty(t, prediction.ConfidenceInterval)

		first := prediction.ConfidenceInterval[0]
		last := prediction.ConfidenceInterval[len(prediction.ConfidenceInterval)-1]
		assert.Greater(t, last.Upper-last.Lower, first.Upper-first.Lower)
	})

	t.Run("no prediction without enough samples or horizon", func(t *testing.T) {
		buf := series.NewBuffer(100)
		feed(buf, "sparse", []float64{1, 2})
		analyzer := newTestAnalyzer(buf)

		_, ok := analyzer.Predict("sparse", time.Minute)
		assert.False(t, ok)

		feed(buf, "ok", rising(10))
		_, ok = analyzer.Predict("ok", 0)
		assert.False(t, ok)
	})
}

func TestAnalyzer_Anomalies(t *testing.T) {
	t.Run("spike is flagged against its window", func(t *testing.T) {
		buf := series.NewBuffer(100)
		values := constant(20, 10)
		values[12] = 100
		// Mild noise so the window stddev is not zero
		for i := range values {
			if i%2 == 0 && values[i] == 10 {
				values[i] = 11
			}
		}
		feed(buf, "errors", values)
		analyzer := newTestAnalyzer(buf)

		anomalies := analyzer.Anomalies("errors")

		require.Len(t, anomalies, 1)
		assert.Equal(t, 100.0, anomalies[0].Point.Value)
		assert.GreaterOrEqual(t, anomalies[0].ZScore, 3.0)
	})

	t.Run("flat series has no anomalies", func(t *testing.T) {
		buf := series.NewBuffer(100)
		feed(buf, "steady", constant(20, 5))
		analyzer := newTestAnalyzer(buf)

		assert.Empty(t, analyzer.Anomalies("steady"))
	})

	t.Run("detection does not remove points", func(t *testing.T) {
		buf := series.NewBuffer(100)
		values := constant(10, 10)
		values[5] = 500
		values[0] = 11
		feed(buf, "spiky", values)
		analyzer := newTestAnalyzer(buf)

		analyzer.Anomalies("spiky")

		assert.Equal(t, 10, buf.Len("spiky"))
	})
}
