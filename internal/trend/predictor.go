package trend

import (
	"time"
)

// Prediction bases
const (
	BasisLinear       = "linear"
	BasisExpSmoothing = "exponential-smoothing"
)

// PredictedPoint is one forecast value.
type PredictedPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Interval is the confidence bound around one forecast value.
type Interval struct {
	Timestamp time.Time `json:"timestamp"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// Prediction is a forward extrapolation of a metric.
type Prediction struct {
	Metric             string           `json:"metric"`
	ForecastHorizon    time.Duration    `json:"forecast_horizon"`
	PredictedValues    []PredictedPoint `json:"predicted_values"`
	ConfidenceInterval []Interval       `json:"confidence_interval,omitempty"`
	Basis              string           `json:"basis"`
}

// Predict extrapolates the metric across the horizon, one point per
// configured step. A quiet series extends its linear fit; a volatile
// one falls back to exponential smoothing. The confidence interval
// widens linearly with forecast distance.
func (a *Analyzer) Predict(metric string, horizon time.Duration) (*Prediction, bool) {
	s, ok := a.buf.Series(metric)
	if !ok || len(s.Points) < a.config.MinSamples || horizon <= 0 {
		return nil, false
	}

	points := s.Points
	fit := linearFit(points)
	last := points[len(points)-1]
	t0 := points[0].Timestamp

	basis := BasisLinear
	spread := valueRange(points)
	if spread > 0 && fit.residualStd/spread > a.config.VolatilityThreshold {
		basis = BasisExpSmoothing
	}

	steps := a.config.PredictionSteps
	step := horizon / time.Duration(steps)
	if step <= 0 {
		step = horizon
		steps = 1
	}

	var level float64
	if basis == BasisExpSmoothing {
		level = points[0].Value
		for _, p := range points[1:] {
			level = a.config.SmoothingAlpha*p.Value + (1-a.config.SmoothingAlpha)*level
		}
	}

	predicted := make([]PredictedPoint, 0, steps)
	intervals := make([]Interval, 0, steps)
	for i := 1; i <= steps; i++ {
		ts := last.Timestamp.Add(time.Duration(i) * step)

		var value float64
		switch basis {
		case BasisExpSmoothing:
			value = level
		default:
			value = fit.intercept + fit.slope*ts.Sub(t0).Seconds()
		}
		predicted = append(predicted, PredictedPoint{Timestamp: ts, Value: value})

		// Bound widens linearly with distance from the last observation.
		distance := float64(i) / float64(steps)
		half := 1.96 * fit.residualStd * (1 + distance)
		intervals = append(intervals, Interval{
			Timestamp: ts,
			Lower:     value - half,
			Upper:     value + half,
		})
	}

	return &Prediction{
		Metric:             metric,
		ForecastHorizon:    horizon,
		PredictedValues:    predicted,
		ConfidenceInterval: intervals,
		Basis:              basis,
	}, true
}
