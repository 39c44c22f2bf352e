// internal/trend/analyzer.go
package trend

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/fluxmetric/pulse/internal/series"
)

// Trend directions
const (
	DirectionUp     = "up"
	DirectionDown   = "down"
	DirectionStable = "stable"
)

// Config configures an Analyzer.
type Config struct {
	// MinSamples is the smallest window Analyze will fit.
	MinSamples int
	// TargetWindow is the sample count at which confidence is no
	// longer down-weighted.
	TargetWindow int
	// StableBand is the fraction of the value range below which the
	// fitted total change counts as noise.
	StableBand float64
	// AnomalySigma is the z-score multiplier for flagging points.
	AnomalySigma float64
	// AnomalyWindow is the trailing window for anomaly statistics.
	AnomalyWindow int
	// VolatilityThreshold is the relative residual spread above which
	// prediction falls back to exponential smoothing.
	VolatilityThreshold float64
	// SmoothingAlpha is the exponential smoothing factor.
	SmoothingAlpha float64
	// PredictionSteps is the number of forecast points per horizon.
	PredictionSteps int
}

// ApplyDefaults fills in default values.
func (c *Config) ApplyDefaults() {
	if c.MinSamples == 0 {
		c.MinSamples = 3
	}
	if c.TargetWindow == 0 {
		c.TargetWindow = 20
	}
	if c.StableBand == 0 {
		c.StableBand = 0.02
	}
	if c.AnomalySigma == 0 {
		c.AnomalySigma = 3.0
	}
	if c.AnomalyWindow == 0 {
		c.AnomalyWindow = 50
	}
	if c.VolatilityThreshold == 0 {
		c.VolatilityThreshold = 0.15
	}
	if c.SmoothingAlpha == 0 {
		c.SmoothingAlpha = 0.3
	}
	if c.PredictionSteps == 0 {
		c.PredictionSteps = 10
	}
}

// Analysis is the result of fitting one metric's window.
type Analysis struct {
	Metric     string    `json:"metric"`
	Slope      float64   `json:"slope"` // value units per second
	Direction  string    `json:"direction"`
	Confidence float64   `json:"confidence"` // 0-1
	WindowSize int       `json:"window_size"`
	ComputedAt time.Time `json:"computed_at"`
}

// Analyzer computes trends, predictions and anomaly flags from the
// metric series buffer.
type Analyzer struct {
	buf    *series.Buffer
	config Config
	logger *zap.Logger
}

// NewAnalyzer creates an analyzer over the given buffer.
func NewAnalyzer(buf *series.Buffer, config Config, logger *zap.Logger) *Analyzer {
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{buf: buf, config: config, logger: logger}
}

// Analyze fits a least-squares line through the metric's window and
// classifies its direction. Reports false when fewer than MinSamples
// points are present.
func (a *Analyzer) Analyze(metric string) (*Analysis, bool) {
	s, ok := a.buf.Series(metric)
	if !ok || len(s.Points) < a.config.MinSamples {
		return nil, false
	}

	fit := linearFit(s.Points)

	analysis := &Analysis{
		Metric:     metric,
		Slope:      fit.slope,
		Direction:  a.classify(fit, s.Points),
		Confidence: a.confidence(fit, len(s.Points)),
		WindowSize: len(s.Points),
		ComputedAt: time.Now(),
	}
	return analysis, true
}

// classify decides up/down/stable using a dead zone around zero slope:
// the fitted total change across the window must exceed StableBand of
// the observed value range to count as a real trend.
func (a *Analyzer) classify(fit fitResult, points []series.Point) string {
	valueRange := valueRange(points)
	if valueRange == 0 {
		return DirectionStable
	}

	duration := points[len(points)-1].Timestamp.Sub(points[0].Timestamp).Seconds()
	totalChange := math.Abs(fit.slope) * duration
	if totalChange < a.config.StableBand*valueRange {
		return DirectionStable
	}
	if fit.slope > 0 {
		return DirectionUp
	}
	return DirectionDown
}

// confidence is the fit's R², down-weighted when the window is smaller
// than the target.
func (a *Analyzer) confidence(fit fitResult, sampleCount int) float64 {
	conf := clamp01(fit.r2)
	if sampleCount < a.config.TargetWindow {
		conf *= float64(sampleCount) / float64(a.config.TargetWindow)
	}
	return clamp01(conf)
}

// fitResult holds the least-squares fit of value against time.
type fitResult struct {
	slope       float64 // per second
	intercept   float64 // value at the first point's timestamp
	r2          float64
	residualStd float64
}

// linearFit computes an ordinary least-squares fit of value against
// seconds since the first point.
func linearFit(points []series.Point) fitResult {
	n := float64(len(points))
	t0 := points[0].Timestamp

	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := p.Timestamp.Sub(t0).Seconds()
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		// All points share a timestamp; no slope can be fit.
		return fitResult{intercept: sumY / n, r2: 0}
	}

	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n
	meanY := sumY / n

	var ssRes, ssTot float64
	for _, p := range points {
		x := p.Timestamp.Sub(t0).Seconds()
		predicted := intercept + slope*x
		ssRes += (p.Value - predicted) * (p.Value - predicted)
		ssTot += (p.Value - meanY) * (p.Value - meanY)
	}

	r2 := 1.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
	}

	residualStd := 0.0
	if len(points) > 2 {
		residualStd = math.Sqrt(ssRes / (n - 2))
	}

	return fitResult{slope: slope, intercept: intercept, r2: r2, residualStd: residualStd}
}

func valueRange(points []series.Point) float64 {
	min, max := points[0].Value, points[0].Value
	for _, p := range points {
		if p.Value < min {
			min = p.Value
		}
		if p.Value > max {
			max = p.Value
		}
	}
	return max - min
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
