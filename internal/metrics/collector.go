// internal/metrics/collector.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics
	cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	cacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulse_cache_evictions_total",
			Help: "Total number of cache evictions",
		},
	)

	cacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_cache_entries",
			Help: "Current number of cache entries",
		},
	)

	cacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pulse_cache_size_bytes",
			Help: "Current stored size of the cache in bytes",
		},
	)

	// Series metrics
	dataPointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_datapoints_total",
			Help: "Total number of recorded data points",
		},
		[]string{"metric"},
	)

	// Insight metrics
	insightsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_insights_total",
			Help: "Total number of generated insights",
		},
		[]string{"type", "severity"},
	)

	// Sync metrics
	syncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulse_sync_cycles_total",
			Help: "Total number of sync cycles",
		},
		[]string{"outcome"},
	)

	syncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_sync_duration_seconds",
			Help:    "Sync cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	syncAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pulse_sync_attempts",
			Help:    "Push attempts per sync cycle",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)
)

// Collector manages metrics collection
type Collector struct {
	startTime time.Time
}

// NewCollector creates a metrics collector
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
	}
}

// RecordCacheHit records a cache hit
func (c *Collector) RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records a cache miss
func (c *Collector) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordEviction records a cache eviction
func (c *Collector) RecordEviction() {
	cacheEvictions.Inc()
}

// SetCacheGauges updates the entry count and size gauges
func (c *Collector) SetCacheGauges(entries int, sizeBytes int64) {
	cacheEntries.Set(float64(entries))
	cacheSizeBytes.Set(float64(sizeBytes))
}

// RecordDataPoint records one ingested data point
func (c *Collector) RecordDataPoint(metric string) {
	dataPointsTotal.WithLabelValues(metric).Inc()
}

// RecordInsight records one generated insight
func (c *Collector) RecordInsight(insightType, severity string) {
	insightsTotal.WithLabelValues(insightType, severity).Inc()
}

// RecordSyncCycle records the outcome of one sync cycle
func (c *Collector) RecordSyncCycle(success bool, attempts int, duration time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	syncCyclesTotal.WithLabelValues(outcome).Inc()
	syncDuration.Observe(duration.Seconds())
	syncAttempts.Observe(float64(attempts))
}

// Uptime returns the uptime duration
func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}
