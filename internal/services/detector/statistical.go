package detector

import (
	"fmt"
	"math"
	"sort"

	"FlockWatch/internal/domain/models"
)

const minStatisticalSamples = 5

// StatisticalDetector applies two independent univariate decision rules:
// z-score magnitude against a configurable threshold and Tukey fences built
// from quartiles. Quartile statistics keep the fitted baseline robust against
// a single out-of-range extreme in the training window.
type StatisticalDetector struct {
	cfg Config
}

func (d *StatisticalDetector) Kind() models.DetectorKind { return models.KindStatistical }

func (d *StatisticalDetector) Fit(w *models.SignalWindow) (Model, error) {
	if w.Len() < minStatisticalSamples {
		return nil, fmt.Errorf("%w: statistical needs >= %d samples, have %d",
			ErrInsufficientData, minStatisticalSamples, w.Len())
	}
	values := w.Values()
	if distinctCount(values) < 2 {
		// Zero variance: no z-score rule is possible. Fail fast rather than
		// fit a degenerate baseline.
		return nil, fmt.Errorf("%w: statistical needs >= 2 distinct values", ErrInsufficientData)
	}

	mean, std := meanStd(values)
	q1, q3 := quartiles(values)

	return &statisticalModel{
		metric: w.Metric,
		mean:   mean,
		std:    std,
		q1:     q1,
		q3:     q3,
		iqr:    q3 - q1,
		zMax:   d.cfg.ZThreshold,
		fence:  d.cfg.IQRMultiplier,
	}, nil
}

type statisticalModel struct {
	metric models.MetricName
	mean   float64
	std    float64
	q1     float64
	q3     float64
	iqr    float64
	zMax   float64
	fence  float64
}

func (m *statisticalModel) Kind() models.DetectorKind { return models.KindStatistical }

func (m *statisticalModel) Score(points []models.MetricPoint) []models.DetectionResult {
	out := make([]models.DetectionResult, len(points))
	for i, p := range points {
		z := m.zScore(p.Value)
		fenceDist := m.fenceDistance(p.Value)

		// Each rule normalizes its distance by its own threshold, so a value
		// exactly at the rule boundary scores 1.0. The point's score is the
		// stronger rule, clipped.
		zNorm := clip01(math.Abs(z) / m.zMax)
		fenceNorm := clip01(fenceDist)
		score := zNorm
		if fenceNorm > score {
			score = fenceNorm
		}

		out[i] = models.DetectionResult{
			Metric:          m.metric,
			Value:           p.Value,
			RawScore:        math.Abs(z),
			NormalizedScore: score,
			Kind:            models.KindStatistical,
		}
	}
	return out
}

// ZScore reports how many standard deviations a value sits from the fitted mean.
func (m *statisticalModel) ZScore(value float64) float64 { return m.zScore(value) }

// Mean returns the fitted window mean, exposed for explanation text.
func (m *statisticalModel) Mean() float64 { return m.mean }

func (m *statisticalModel) zScore(value float64) float64 {
	if m.std == 0 {
		return 0
	}
	return (value - m.mean) / m.std
}

// fenceDistance returns the value's distance beyond the nearest quartile in
// units of the fence margin (m.fence * IQR). A value exactly on a Tukey fence
// scores 1.0, mirroring the z rule; values inside the quartile box score 0.
func (m *statisticalModel) fenceDistance(value float64) float64 {
	margin := m.fence * m.iqr
	if margin == 0 {
		return 0
	}
	switch {
	case value < m.q1:
		return (m.q1 - value) / margin
	case value > m.q3:
		return (value - m.q3) / margin
	default:
		return 0
	}
}

func distinctCount(values []float64) int {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
		if len(seen) >= 2 {
			return len(seen)
		}
	}
	return len(seen)
}

func meanStd(values []float64) (float64, float64) {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}

// quartiles computes Q1/Q3 with linear interpolation between ranks.
func quartiles(values []float64) (float64, float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return percentile(sorted, 0.25), percentile(sorted, 0.75)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
