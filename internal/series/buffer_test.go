package series

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_Add(t *testing.T) {
	t.Run("points come back oldest first", func(t *testing.T) {
		buf := NewBuffer(10)

		buf.Add("cpu", 1, nil)
		buf.Add("cpu", 2, nil)
		buf.Add("cpu", 3, nil)

		s, ok := buf.Series("cpu")
		require.True(t, ok)
		require.Len(t, s.Points, 3)
		assert.Equal(t, 1.0, s.Points[0].Value)
		assert.Equal(t, 3.0, s.Points[2].Value)
	})

	t.Run("overflow drops the oldest point", func(t *testing.T) {
		buf := NewBuffer(3)

		for i := 1; i <= 5; i++ {
			buf.Add("mem", float64(i), nil)
		}

		s, ok := buf.Series("mem")
		require.True(t, ok)
		require.Len(t, s.Points, 3)
		assert.Equal(t, []float64{3, 4, 5}, values(s.Points))
	})

	t.Run("timestamps never decrease within a metric", func(t *testing.T) {
		buf := NewBuffer(100)

		for i := 0; i < 50; i++ {
			buf.Add("latency", float64(i), nil)
		}

		s, ok := buf.Series("latency")
		require.True(t, ok)
		for i := 1; i < len(s.Points); i++ {
			assert.False(t, s.Points[i].Timestamp.Before(s.Points[i-1].Timestamp))
		}
	})

	t.Run("metadata rides along with the point", func(t *testing.T) {
		buf := NewBuffer(10)

		buf.Add("errors", 1, map[string]string{"source": "collector-a"})

		s, ok := buf.Series("errors")
		require.True(t, ok)
		assert.Equal(t, "collector-a", s.Points[0].Metadata["source"])
	})
}

func TestBuffer_Series(t *testing.T) {
	t.Run("unknown metric reports absent", func(t *testing.T) {
		buf := NewBuffer(10)

		_, ok := buf.Series("nope")
		assert.False(t, ok)
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		buf := NewBuffer(10)
		buf.Add("cpu", 1, nil)

		s, ok := buf.Series("cpu")
		require.True(t, ok)
		s.Points[0].Value = 999

		again, _ := buf.Series("cpu")
		assert.Equal(t, 1.0, again.Points[0].Value)
	})

	t.Run("snapshot covers every metric", func(t *testing.T) {
		buf := NewBuffer(10)
		buf.Add("a", 1, nil)
		buf.Add("b", 2, nil)

		snap := buf.Snapshot()
		assert.Len(t, snap, 2)
		assert.Len(t, snap["a"], 1)
		assert.ElementsMatch(t, []string{"a", "b"}, buf.Names())
	})
}

func TestBuffer_ConcurrentProducers(t *testing.T) {
	t.Run("shared metric name keeps order under contention", func(t *testing.T) {
		buf := NewBuffer(500)

		var wg sync.WaitGroup
		for p := 0; p < 8; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					buf.Add("shared", float64(i), nil)
					time.Sleep(time.Microsecond)
				}
			}()
		}
		wg.Wait()

		s, ok := buf.Series("shared")
		require.True(t, ok)
		assert.Equal(t, 400, len(s.Points))
		for i := 1; i < len(s.Points); i++ {
			assert.False(t, s.Points[i].Timestamp.Before(s.Points[i-1].Timestamp))
		}
	})
}

func values(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
