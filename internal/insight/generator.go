// internal/insight/generator.go
package insight

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fluxmetric/pulse/internal/cache"
	"github.com/fluxmetric/pulse/internal/series"
	"github.com/fluxmetric/pulse/internal/trend"
)

// Insight types
const (
	TypeAlert          = "alert"
	TypeTrend          = "trend"
	TypePrediction     = "prediction"
	TypeRecommendation = "recommendation"
)

// Severities, least to most severe
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

var severityRank = map[string]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Insight is a generated observation about a metric. Its ID is derived
// from content and the time bucket, so regenerating an unchanged
// condition within the bucket yields the same ID.
type Insight struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	Metric      string    `json:"metric"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Impact      string    `json:"impact"`
	Actionable  bool      `json:"actionable"`
	Timestamp   time.Time `json:"timestamp"`
}

// Threshold is a static bound for one metric. Above selects whether a
// breach means exceeding or falling below the bounds.
type Threshold struct {
	Metric   string  `yaml:"metric" json:"metric"`
	Warn     float64 `yaml:"warn" json:"warn"`
	Critical float64 `yaml:"critical" json:"critical"`
	Above    bool    `yaml:"above" json:"above"`
}

// breached reports whether value crosses the given bound.
func (t Threshold) breached(value, bound float64) bool {
	if t.Above {
		return value >= bound
	}
	return value <= bound
}

// Config configures a Generator.
type Config struct {
	Thresholds         []Threshold
	MaxInsights        int
	Bucket             time.Duration
	MinTrendConfidence float64
	CriticalSigma      float64
	PredictionHorizon  time.Duration
}

// ApplyDefaults fills in default values.
func (c *Config) ApplyDefaults() {
	if c.MaxInsights == 0 {
		c.MaxInsights = 10
	}
	if c.Bucket == 0 {
		c.Bucket = 5 * time.Minute
	}
	if c.MinTrendConfidence == 0 {
		c.MinTrendConfidence = 0.5
	}
	if c.CriticalSigma == 0 {
		c.CriticalSigma = 4.0
	}
	if c.PredictionHorizon == 0 {
		c.PredictionHorizon = 10 * time.Minute
	}
}

// insightCacheKey is where the rolling insight set persists in the
// cache store, so restarts within a bucket do not re-raise.
const insightCacheKey = "insights:recent"

// Generator evaluates thresholds, trends and anomalies into
// deduplicated insights.
type Generator struct {
	mu       sync.Mutex
	analyzer *trend.Analyzer
	buf      *series.Buffer
	store    *cache.Store
	config   Config
	logger   *zap.Logger

	seen   map[string]Insight
	loaded bool
}

// NewGenerator creates a generator. The store may be nil, in which case
// insights are not persisted across restarts.
func NewGenerator(analyzer *trend.Analyzer, buf *series.Buffer, store *cache.Store, config Config, logger *zap.Logger) *Generator {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		analyzer: analyzer,
		buf:      buf,
		store:    store,
		config:   config,
		logger:   logger,
		seen:     make(map[string]Insight),
	}
}

// Generate evaluates every tracked metric and returns the insights
// triggered by the current data, one per condition. Repeated calls
// within a time bucket produce identical IDs for unchanged conditions.
func (g *Generator) Generate(ctx context.Context) []Insight {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.loadLocked(ctx)

	var generated []Insight
	for _, metric := range g.buf.Names() {
		generated = append(generated, g.evaluateMetric(metric)...)
	}

	now := time.Now()
	for _, ins := range generated {
		g.seen[ins.ID] = ins
	}
	g.pruneLocked(now)
	g.persistLocked(ctx)

	return generated
}

// Top returns the deduplicated insight set, most severe first, capped
// at the configured maximum.
func (g *Generator) Top(ctx context.Context) []Insight {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.loadLocked(ctx)
	g.pruneLocked(time.Now())

	out := make([]Insight, 0, len(g.seen))
	for _, ins := range g.seen {
		out = append(out, ins)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := severityRank[out[i].Severity], severityRank[out[j].Severity]
		if ri != rj {
			return ri > rj
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if len(out) > g.config.MaxInsights {
		out = out[:g.config.MaxInsights]
	}
	return out
}

// evaluateMetric emits insights for one metric's thresholds, trend,
// anomalies and predicted breaches.
func (g *Generator) evaluateMetric(metric string) []Insight {
	s, ok := g.buf.Series(metric)
	if !ok || len(s.Points) == 0 {
		return nil
	}
	latest := s.Points[len(s.Points)-1]

	var out []Insight

	threshold, hasThreshold := g.threshold(metric)
	if hasThreshold {
		if ins, ok := g.thresholdInsight(metric, latest.Value, threshold); ok {
			out = append(out, ins)
		}
	}

	analysis, analyzed := g.analyzer.Analyze(metric)
	if analyzed && analysis.Direction != trend.DirectionStable &&
		analysis.Confidence >= g.config.MinTrendConfidence {
		out = append(out, g.trendInsight(metric, analysis))
	}

	for _, anomaly := range g.analyzer.Anomalies(metric) {
		out = append(out, g.anomalyInsight(metric, anomaly))
	}

	if hasThreshold && analyzed && analysis.Direction != trend.DirectionStable {
		if ins, ok := g.predictionInsight(metric, threshold); ok {
			out = append(out, ins)
		}
	}

	return out
}

func (g *Generator) threshold(metric string) (Threshold, bool) {
	for _, t := range g.config.Thresholds {
		if t.Metric == metric {
			return t, true
		}
	}
	return Threshold{}, false
}

// thresholdInsight maps a static-threshold breach to an alert whose
// severity grows with the degree of breach.
func (g *Generator) thresholdInsight(metric string, value float64, t Threshold) (Insight, bool) {
	switch {
	case t.breached(value, t.Critical):
		return g.build(TypeAlert, SeverityCritical, metric, value,
			fmt.Sprintf("%s breached critical threshold", metric),
			fmt.Sprintf("current value %.2f is past the critical bound %.2f", value, t.Critical),
			"service degradation likely", true), true
	case t.breached(value, t.Warn):
		severity := SeverityMedium
		// Past the midpoint between warn and critical counts as high.
		if t.breached(value, t.Warn+(t.Critical-t.Warn)/2) {
			severity = SeverityHigh
		}
		return g.build(TypeAlert, severity, metric, value,
			fmt.Sprintf("%s breached warning threshold", metric),
			fmt.Sprintf("current value %.2f is past the warning bound %.2f", value, t.Warn),
			"headroom shrinking", true), true
	}
	return Insight{}, false
}

func (g *Generator) trendInsight(metric string, analysis *trend.Analysis) Insight {
	severity := SeverityLow
	if analysis.Confidence >= 0.8 {
		severity = SeverityMedium
	}
	return g.build(TypeTrend, severity, metric, analysis.Slope,
		fmt.Sprintf("%s is trending %s", metric, analysis.Direction),
		fmt.Sprintf("slope %.4f/s over %d samples, confidence %.2f",
			analysis.Slope, analysis.WindowSize, analysis.Confidence),
		"sustained drift from baseline", false)
}

func (g *Generator) anomalyInsight(metric string, anomaly trend.Anomaly) Insight {
	severity := SeverityHigh
	if math.Abs(anomaly.ZScore) >= g.config.CriticalSigma {
		severity = SeverityCritical
	}
	return g.build(TypeAlert, severity, metric, anomaly.Point.Value,
		fmt.Sprintf("anomalous reading on %s", metric),
		fmt.Sprintf("value %.2f sits %.1f standard deviations from the trailing window",
			anomaly.Point.Value, anomaly.ZScore),
		"possible incident or bad data source", true)
}

// predictionInsight warns when the forecast crosses a configured bound
// within the horizon.
func (g *Generator) predictionInsight(metric string, t Threshold) (Insight, bool) {
	prediction, ok := g.analyzer.Predict(metric, g.config.PredictionHorizon)
	if !ok {
		return Insight{}, false
	}

	for _, p := range prediction.PredictedValues {
		if t.breached(p.Value, t.Critical) {
			return g.build(TypePrediction, SeverityHigh, metric, p.Value,
				fmt.Sprintf("%s forecast to breach critical threshold", metric),
				fmt.Sprintf("predicted to reach %.2f by %s (%s model)",
					p.Value, p.Timestamp.Format(time.RFC3339), prediction.Basis),
				"breach expected without intervention", true), true
		}
	}
	for _, p := range prediction.PredictedValues {
		if t.breached(p.Value, t.Warn) {
			return g.build(TypeRecommendation, SeverityMedium, metric, p.Value,
				fmt.Sprintf("consider adding headroom for %s", metric),
				fmt.Sprintf("forecast crosses the warning bound %.2f within %s",
					t.Warn, g.config.PredictionHorizon),
				"early capacity action avoids an alert later", true), true
		}
	}
	return Insight{}, false
}

// build assembles an insight with a content-derived ID.
func (g *Generator) build(insightType, severity, metric string, value float64, title, description, impact string, actionable bool) Insight {
	now := time.Now()
	return Insight{
		ID:          g.insightID(metric, insightType, value, now),
		Type:        insightType,
		Severity:    severity,
		Metric:      metric,
		Title:       title,
		Description: description,
		Impact:      impact,
		Actionable:  actionable,
		Timestamp:   now,
	}
}

// insightID hashes metric, type, the rounded value and the time bucket.
// Identical conditions in the same bucket hash identically.
func (g *Generator) insightID(metric, insightType string, value float64, now time.Time) string {
	bucket := now.Truncate(g.config.Bucket).Unix()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.2f|%d", metric, insightType, value, bucket)))
	return hex.EncodeToString(sum[:])[:16]
}

// loadLocked restores the persisted insight set once per process.
func (g *Generator) loadLocked(ctx context.Context) {
	if g.loaded || g.store == nil {
		g.loaded = true
		return
	}
	g.loaded = true

	var persisted []Insight
	if g.store.Get(ctx, insightCacheKey, &persisted) {
		for _, ins := range persisted {
			g.seen[ins.ID] = ins
		}
		g.logger.Debug("restored persisted insights", zap.Int("count", len(persisted)))
	}
}

// persistLocked writes the rolling set through the cache store.
func (g *Generator) persistLocked(ctx context.Context) {
	if g.store == nil {
		return
	}

	out := make([]Insight, 0, len(g.seen))
	for _, ins := range g.seen {
		out = append(out, ins)
	}
	g.store.Set(ctx, insightCacheKey, out,
		cache.WithTTL(2*g.config.Bucket),
		cache.WithTags("insights"))
}

// pruneLocked drops insights older than two buckets.
func (g *Generator) pruneLocked(now time.Time) {
	cutoff := now.Add(-2 * g.config.Bucket)
	for id, ins := range g.seen {
		if ins.Timestamp.Before(cutoff) {
			delete(g.seen, id)
		}
	}
}
