package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fluxmetric/pulse/internal/series"
)

func newTestAnalyzer(buf *series.Buffer) *Analyzer {
	return NewAnalyzer(buf, Config{}, zap.NewNop())
}

// feed appends count points separated by a short real delay so the fit
// has a usable time axis.
func feed(buf *series.Buffer, metric string, values []float64) {
	for _, v := range values {
		buf.Add(metric, v, nil)
		time.Sleep(time.Millisecond)
	}
}

func rising(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * 2
	}
	return out
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestAnalyzer_Analyze(t *testing.T) {
	t.Run("rising series trends up with positive slope", func(t *testing.T) {
		buf := series.NewBuffer(100)
		feed(buf, "throughput", rising(20))
		analyzer := newTestAnalyzer(buf)

		analysis, ok := analyzer.Analyze("throughput")

		require.True(t, ok)
		assert.Equal(t, DirectionUp, analysis.Direction)
		assert.Greater(t, analysis.Slope, 0.0)
		assert.Equal(t, 20, analysis.WindowSize)
	})

	t.Run("falling series trends down", func(t *testing.T) {
		buf := series.NewBuffer(100)
		values := rising(20)
		for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
			values[i], values[j] = values[j], values[i]
		}
		feed(buf, "free_memory", values)
		analyzer := newTestAnalyzer(buf)

		analysis, ok := analyzer.Analyze("free_memory")

		require.True(t, ok)
		assert.Equal(t, DirectionDown, analysis.Direction)
		assert.Less(t, analysis.Slope, 0.0)
	})

	t.Run("constant series is stable", func(t *testing.T) {
		buf := series.NewBuffer(100)
		feed(buf, "connections", constant(20, 7.5))
		analyzer := newTestAnalyzer(buf)

		analysis, ok := analyzer.Analyze("connections")

		require.True(t, ok)
		assert.Equal(t, DirectionStable, analysis.Direction)
	})

	t.Run("too few samples yields nothing", func(t *testing.T) {
		buf := series.NewBuffer(100)
		feed(buf, "sparse", []float64{1, 2})
		analyzer := newTestAnalyzer(buf)

		_, ok := analyzer.Analyze("sparse")
		assert.False(t, ok)

		_, ok = analyzer.Analyze("never_seen")
		assert.False(t, ok)
	})

	t.Run("confidence stays within bounds", func(t *testing.T) {
		buf := series.NewBuffer(100)
		feed(buf, "cpu", rising(25))
		analyzer := newTestAnalyzer(buf)

		analysis, ok := analyzer.Analyze("cpu")

		require.True(t, ok)
		assert.GreaterOrEqual(t, analysis.Confidence, 0.0)
		assert.LessOrEqual(t, analysis.Confidence, 1.0)
	})

	t.Run("small windows are down-weighted", func(t *testing.T) {
		buf := series.NewBuffer(100)
		feed(buf, "small", rising(5))
		feed(buf, "large", rising(25))
		analyzer := newTestAnalyzer(buf)

		small, ok := analyzer.Analyze("small")
		require.True(t, ok)
		large, ok := analyzer.Analyze("large")
		require.True(t, ok)

		assert.Less(t, small.Confidence, large.Confidence)
		assert.LessOrEqual(t, small.Confidence, 0.25, "5 of 20 target samples caps confidence")
	})
}

func TestLinearFit(t *testing.T) {
	t.Run("perfect line has r2 of one", func(t *testing.T) {
		base := time.Now()
		points := make([]series.Point, 10)
		for i := range points {
			points[i] = series.Point{
				Timestamp: base.Add(time.Duration(i) * time.Second),
				Value:     3 + 2*float64(i),
			}
		}

		fit := linearFit(points)

		assert.InDelta(t, 2.0, fit.slope, 0.0001)
		assert.InDelta(t, 3.0, fit.intercept, 0.0001)
		assert.InDelta(t, 1.0, fit.r2, 0.0001)
	})

	t.Run("identical timestamps cannot be fit", func(t *testing.T) {
		ts := time.Now()
		points := []series.Point{
			{Timestamp: ts, Value: 1},
			{Timestamp: ts, Value: 2},
			{Timestamp: ts, Value: 3},
		}

		fit := linearFit(points)

		assert.Equal(t, 0.0, fit.slope)
		assert.Equal(t, 0.0, fit.r2)
	})
}
