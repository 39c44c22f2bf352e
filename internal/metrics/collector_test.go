package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	collector := NewCollector()

	t.Run("cache counters increment", func(t *testing.T) {
		before := testutil.ToFloat64(cacheHits)
		collector.RecordCacheHit()
		collector.RecordCacheHit()
		assert.Equal(t, before+2, testutil.ToFloat64(cacheHits))

		before = testutil.ToFloat64(cacheMisses)
		collector.RecordCacheMiss()
		assert.Equal(t, before+1, testutil.ToFloat64(cacheMisses))

		before = testutil.ToFloat64(cacheEvictions)
		collector.RecordEviction()
		assert.Equal(t, before+1, testutil.ToFloat64(cacheEvictions))
	})

	t.Run("gauges track the latest value", func(t *testing.T) {
		collector.SetCacheGauges(42, 1024)
		assert.Equal(t, 42.0, testutil.ToFloat64(cacheEntries))
		assert.Equal(t, 1024.0, testutil.ToFloat64(cacheSizeBytes))

		collector.SetCacheGauges(7, 256)
		assert.Equal(t, 7.0, testutil.ToFloat64(cacheEntries))
	})

	t.Run("labelled counters pick the right series", func(t *testing.T) {
		collector.RecordDataPoint("cpu_usage")
		collector.RecordDataPoint("cpu_usage")
		assert.Equal(t, 2.0, testutil.ToFloat64(dataPointsTotal.WithLabelValues("cpu_usage")))

		collector.RecordInsight("alert", "critical")
		assert.Equal(t, 1.0, testutil.ToFloat64(insightsTotal.WithLabelValues("alert", "critical")))

		collector.RecordSyncCycle(true, 1, 50*time.Millisecond)
		collector.RecordSyncCycle(false, 3, 200*time.Millisecond)
		assert.Equal(t, 1.0, testutil.ToFloat64(syncCyclesTotal.WithLabelValues("success")))
		assert.Equal(t, 1.0, testutil.ToFloat64(syncCyclesTotal.WithLabelValues("failure")))
	})

	t.Run("uptime grows", func(t *testing.T) {
		assert.GreaterOrEqual(t, collector.Uptime(), time.Duration(0))
	})
}
