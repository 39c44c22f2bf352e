// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fluxmetric/pulse/internal/cache"
	"github.com/fluxmetric/pulse/internal/events"
	"github.com/fluxmetric/pulse/internal/insight"
	"github.com/fluxmetric/pulse/internal/metrics"
	"github.com/fluxmetric/pulse/internal/persist"
	"github.com/fluxmetric/pulse/internal/series"
	"github.com/fluxmetric/pulse/internal/syncer"
	"github.com/fluxmetric/pulse/internal/trend"
)

// ErrNoTransport is returned by SyncToCloud when no remote transport
// was configured.
var ErrNoTransport = errors.New("engine: no sync transport configured")

// Options assembles the engine's sub-systems.
type Options struct {
	Cache          cache.Config
	SeriesCapacity int
	Trend          trend.Config
	Insights       insight.Config
	Sync           syncer.Config

	// Transport is the remote sync target; nil disables syncing.
	Transport syncer.Transport
	// Backend persists cache snapshots across restarts; nil disables
	// persistence.
	Backend persist.Backend

	Logger    *zap.Logger
	Collector *metrics.Collector
}

// Engine ties the cache, series buffer, trend analyzer, insight
// generator and sync coordinator together behind one facade.
type Engine struct {
	store     *cache.Store
	buffer    *series.Buffer
	analyzer  *trend.Analyzer
	generator *insight.Generator
	coord     *syncer.Coordinator
	backend   persist.Backend
	bus       *events.Bus
	collector *metrics.Collector
	logger    *zap.Logger
}

// New builds the engine. When a persistence backend is configured the
// previous snapshot is imported before the engine is returned; an
// unreadable snapshot logs a warning and starts fresh.
func New(ctx context.Context, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	collector := opts.Collector
	if collector == nil {
		collector = metrics.NewCollector()
	}

	store, err := cache.NewStore(opts.Cache, logger.Named("cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to create cache store: %w", err)
	}
	store.StartJanitor()

	buffer := series.NewBuffer(opts.SeriesCapacity)
	analyzer := trend.NewAnalyzer(buffer, opts.Trend, logger.Named("trend"))
	generator := insight.NewGenerator(analyzer, buffer, store, opts.Insights, logger.Named("insight"))

	e := &Engine{
		store:     store,
		buffer:    buffer,
		analyzer:  analyzer,
		generator: generator,
		backend:   opts.Backend,
		bus:       events.NewBus(0),
		collector: collector,
		logger:    logger,
	}

	if opts.Transport != nil {
		e.coord = syncer.NewCoordinator(store, opts.Transport, opts.Sync, logger.Named("syncer"))
		e.coord.Run(ctx)
	}

	if opts.Backend != nil {
		snapshot, err := opts.Backend.Load(ctx)
		if err != nil {
			logger.Warn("failed to load persisted snapshot", zap.Error(err))
		} else if len(snapshot) > 0 {
			imported, ok := store.Import(snapshot)
			if !ok {
				logger.Warn("persisted snapshot was unreadable, starting fresh")
			} else {
				logger.Info("restored cache from snapshot", zap.Int("entries", imported))
			}
		}
	}

	return e, nil
}

// Subscribe returns a channel of engine events and a cancel func.
func (e *Engine) Subscribe() (<-chan events.Event, func()) {
	return e.bus.Subscribe()
}

// AddDataPoint records one sample for a metric.
func (e *Engine) AddDataPoint(metric string, value float64, metadata map[string]string) {
	e.buffer.Add(metric, value, metadata)
	e.collector.RecordDataPoint(metric)
	e.bus.Publish(events.TypeMetricRecorded, map[string]any{
		"metric": metric,
		"value":  value,
	})
}

// AnalyzeTrend analyzes the named metric's recent direction.
func (e *Engine) AnalyzeTrend(metric string) (*trend.Analysis, bool) {
	return e.analyzer.Analyze(metric)
}

// Predict forecasts the named metric over the horizon.
func (e *Engine) Predict(metric string, horizon time.Duration) (*trend.Prediction, bool) {
	return e.analyzer.Predict(metric, horizon)
}

// Anomalies returns statistical outliers in the metric's recent window.
func (e *Engine) Anomalies(metric string) []trend.Anomaly {
	return e.analyzer.Anomalies(metric)
}

// GenerateInsights runs a full evaluation pass over every tracked
// metric and returns the insights it raised.
func (e *Engine) GenerateInsights(ctx context.Context) []insight.Insight {
	raised := e.generator.Generate(ctx)
	for _, ins := range raised {
		e.collector.RecordInsight(ins.Type, ins.Severity)
		e.bus.Publish(events.TypeInsightRaised, map[string]any{
			"insight_id": ins.ID,
			"metric":     ins.Metric,
			"type":       ins.Type,
			"severity":   ins.Severity,
		})
	}
	return raised
}

// PerformanceInsights returns the current top insights, most severe
// first.
func (e *Engine) PerformanceInsights(ctx context.Context) []insight.Insight {
	return e.generator.Top(ctx)
}

// TrendData returns the buffered points for one metric.
func (e *Engine) TrendData(metric string) ([]series.Point, bool) {
	s, ok := e.buffer.Series(metric)
	if !ok {
		return nil, false
	}
	return s.Points, true
}

// AllTrendData returns the buffered points for every metric.
func (e *Engine) AllTrendData() map[string][]series.Point {
	return e.buffer.Snapshot()
}

// MetricNames lists the tracked metric names.
func (e *Engine) MetricNames() []string {
	return e.buffer.Names()
}

// CacheSet stores a value in the cache.
func (e *Engine) CacheSet(ctx context.Context, key string, value any, opts ...cache.SetOption) bool {
	return e.store.Set(ctx, key, value, opts...)
}

// CacheGet retrieves a cached value into dest.
func (e *Engine) CacheGet(ctx context.Context, key string, dest any) bool {
	hit := e.store.Get(ctx, key, dest)
	if hit {
		e.collector.RecordCacheHit()
		e.bus.Publish(events.TypeCacheHit, map[string]any{"key": key})
	} else {
		e.collector.RecordCacheMiss()
		e.bus.Publish(events.TypeCacheMiss, map[string]any{"key": key})
	}
	return hit
}

// CacheDelete removes one cache entry.
func (e *Engine) CacheDelete(ctx context.Context, key string) bool {
	return e.store.Delete(key)
}

// CacheDeleteByTag removes every entry carrying the tag.
func (e *Engine) CacheDeleteByTag(ctx context.Context, tag string) int {
	return e.store.DeleteByTag(tag)
}

// CacheClear empties the cache.
func (e *Engine) CacheClear(ctx context.Context) {
	e.store.Clear()
}

// CacheCleanup removes expired entries and returns how many were
// purged.
func (e *Engine) CacheCleanup(ctx context.Context) int {
	return e.store.CleanupExpired()
}

// CacheStats reports cache statistics and refreshes the gauges.
func (e *Engine) CacheStats() cache.Stats {
	stats := e.store.Stats()
	e.collector.SetCacheGauges(stats.Entries, stats.SizeBytes)
	return stats
}

// UpdateCacheConfig applies new cache limits, evicting as needed.
func (e *Engine) UpdateCacheConfig(config cache.Config) error {
	return e.store.UpdateConfig(config)
}

// SyncToCloud pushes a cache snapshot to the configured remote.
func (e *Engine) SyncToCloud(ctx context.Context) (syncer.Result, error) {
	if e.coord == nil {
		return syncer.Result{}, ErrNoTransport
	}

	result := e.coord.SyncToCloud(ctx)
	if result.Skipped {
		return result, nil
	}

	e.collector.RecordSyncCycle(result.Success, result.Attempts, result.Duration)
	if result.Success {
		e.bus.Publish(events.TypeSyncCompleted, map[string]any{
			"cycle_id": result.CycleID,
			"pushed":   result.Pushed,
		})
	} else {
		e.bus.Publish(events.TypeSyncFailed, map[string]any{
			"cycle_id": result.CycleID,
			"attempts": result.Attempts,
		})
	}
	return result, nil
}

// SyncState reports the sync coordinator's state, or "idle" when
// syncing is disabled.
func (e *Engine) SyncState() string {
	if e.coord == nil {
		return "idle"
	}
	return e.coord.State()
}

// Close saves the cache snapshot, stops background work and releases
// resources.
func (e *Engine) Close(ctx context.Context) error {
	var firstErr error

	if e.backend != nil {
		snapshot, err := e.store.Export()
		if err != nil {
			firstErr = fmt.Errorf("failed to export snapshot: %w", err)
		} else if err := e.backend.Save(ctx, snapshot); err != nil {
			firstErr = fmt.Errorf("failed to persist snapshot: %w", err)
		}
	}

	if e.coord != nil {
		e.coord.Close()
	}
	e.store.Close()
	e.bus.Close()
	return firstErr
}
