package trend

import (
	"math"

	"github.com/fluxmetric/pulse/internal/series"
)

// Anomaly is a point statistically distant from its trailing window.
// Flagged points stay in the series; detection never mutates it.
type Anomaly struct {
	Metric string       `json:"metric"`
	Point  series.Point `json:"point"`
	ZScore float64      `json:"z_score"`
}

// Anomalies flags points in the metric's trailing window whose z-score
// against the window's mean and standard deviation exceeds the
// configured multiplier.
func (a *Analyzer) Anomalies(metric string) []Anomaly {
	s, ok := a.buf.Series(metric)
	if !ok || len(s.Points) < a.config.MinSamples {
		return nil
	}

	points := s.Points
	if len(points) > a.config.AnomalyWindow {
		points = points[len(points)-a.config.AnomalyWindow:]
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	m := mean(values)
	sd := stddev(values, m)
	if sd == 0 {
		return nil
	}

	var anomalies []Anomaly
	for _, p := range points {
		z := (p.Value - m) / sd
		if math.Abs(z) >= a.config.AnomalySigma {
			anomalies = append(anomalies, Anomaly{Metric: metric, Point: p, ZScore: z})
		}
	}
	return anomalies
}
