package detector

import (
	"fmt"
	"math"
	"time"

	"FlockWatch/internal/domain/models"
)

const (
	minTemporalSamples = 3
	// seasonal deviations are measured in overall-std units against the
	// same-phase historical average
	seasonalStdMultiple = 2.0
	// rolling window (in samples) for the second-difference baseline
	trendRollingWindow = 7
)

// TemporalDetector operates on the ordered sequence directly. A point's score
// is the maximum of three signals: trend break (second difference vs its own
// rolling std), velocity change (first difference vs the window's diff
// distribution) and seasonal deviation (same-phase history, when a season
// length is configured). Gaps in the series break seasonal continuity only;
// they are never an error.
type TemporalDetector struct {
	cfg Config
}

func (d *TemporalDetector) Kind() models.DetectorKind { return models.KindTemporal }

func (d *TemporalDetector) Fit(w *models.SignalWindow) (Model, error) {
	if w.Len() < minTemporalSamples {
		return nil, fmt.Errorf("%w: temporal needs >= %d samples, have %d",
			ErrInsufficientData, minTemporalSamples, w.Len())
	}

	m := &temporalModel{
		metric:  w.Metric,
		cfg:     d.cfg,
		cadence: w.Cadence,
		points:  append([]models.MetricPoint(nil), w.Points...),
	}
	m.fitBaselines()
	m.precomputeScores()
	return m, nil
}

type temporalModel struct {
	metric  models.MetricName
	cfg     Config
	cadence time.Duration
	points  []models.MetricPoint

	diffMean, diffStd float64 // first-difference distribution
	accMean, accStd   float64 // second-difference distribution
	overallStd        float64

	phaseSum   map[int]float64
	phaseCount map[int]int

	fitted map[int64]float64 // unix-nano timestamp -> normalized score
}

func (m *temporalModel) Kind() models.DetectorKind { return models.KindTemporal }

func (m *temporalModel) Score(points []models.MetricPoint) []models.DetectionResult {
	out := make([]models.DetectionResult, len(points))
	for i, p := range points {
		score, ok := m.fitted[p.Timestamp.UnixNano()]
		if !ok {
			score = m.scoreTail(p)
		}
		out[i] = models.DetectionResult{
			Metric:          m.metric,
			Value:           p.Value,
			RawScore:        score,
			NormalizedScore: score,
			Kind:            models.KindTemporal,
		}
	}
	return out
}

func (m *temporalModel) fitBaselines() {
	values := make([]float64, len(m.points))
	for i, p := range m.points {
		values[i] = p.Value
	}
	_, m.overallStd = meanStd(values)

	diffs := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		diffs = append(diffs, values[i]-values[i-1])
	}
	m.diffMean, m.diffStd = meanStd(diffs)
	if negligible(m.diffStd, m.diffMean) {
		// a perfectly steady series leaves only float noise in the std;
		// treating it as real variance would make every point a z outlier
		m.diffStd = 0
	}

	if len(diffs) >= 2 {
		accs := make([]float64, 0, len(diffs)-1)
		for i := 1; i < len(diffs); i++ {
			accs = append(accs, diffs[i]-diffs[i-1])
		}
		m.accMean, m.accStd = meanStd(accs)
		if negligible(m.accStd, m.diffMean) {
			m.accStd = 0
		}
	}

	if m.cfg.SeasonLength > 0 && len(m.points) >= 2*m.cfg.SeasonLength {
		m.phaseSum = make(map[int]float64)
		m.phaseCount = make(map[int]int)
		for i, p := range m.points {
			ph := m.phase(i, p)
			if ph < 0 {
				continue
			}
			m.phaseSum[ph] += p.Value
			m.phaseCount[ph]++
		}
	}
}

// phase maps a point to its position within the seasonal cycle. With a known
// cadence the phase is derived from the timestamp, so missing samples shift
// nothing; without one it falls back to the index.
func (m *temporalModel) phase(index int, p models.MetricPoint) int {
	if m.cfg.SeasonLength <= 0 {
		return -1
	}
	if m.cadence > 0 {
		slot := p.Timestamp.UnixNano() / int64(m.cadence)
		return int(((slot % int64(m.cfg.SeasonLength)) + int64(m.cfg.SeasonLength)) % int64(m.cfg.SeasonLength))
	}
	return index % m.cfg.SeasonLength
}

func (m *temporalModel) precomputeScores() {
	n := len(m.points)
	values := make([]float64, n)
	for i, p := range m.points {
		values[i] = p.Value
	}

	m.fitted = make(map[int64]float64, n)
	for i, p := range m.points {
		var velocity, trend, seasonal float64

		if i >= 1 {
			velocity = m.velocityScore(values[i] - values[i-1])
		}
		if i >= 2 {
			acc := values[i] - 2*values[i-1] + values[i-2]
			trend = m.trendScore(acc, m.rollingAccStd(values, i))
		}
		seasonal = m.seasonalScore(i, p)

		m.fitted[p.Timestamp.UnixNano()] = maxOf3(velocity, trend, seasonal)
	}
}

// scoreTail evaluates a point that was not part of the fitted window by
// treating it as the next element after the series.
func (m *temporalModel) scoreTail(p models.MetricPoint) float64 {
	n := len(m.points)
	last := m.points[n-1].Value
	velocity := m.velocityScore(p.Value - last)

	var trend float64
	if n >= 2 {
		prev := m.points[n-2].Value
		acc := p.Value - 2*last + prev
		trend = m.trendScore(acc, m.accStd)
	}

	seasonal := m.seasonalScore(n, p)
	return maxOf3(velocity, trend, seasonal)
}

func (m *temporalModel) velocityScore(diff float64) float64 {
	if m.diffStd == 0 {
		if negligible(diff-m.diffMean, m.diffMean) {
			return 0
		}
		return 1
	}
	z := math.Abs(diff-m.diffMean) / m.diffStd
	return clip01(z / m.cfg.VelocityThreshold)
}

func (m *temporalModel) trendScore(acc, rollingStd float64) float64 {
	if rollingStd == 0 {
		if negligible(acc-m.accMean, m.diffMean) {
			return 0
		}
		return 1
	}
	z := math.Abs(acc-m.accMean) / rollingStd
	return clip01(z / m.cfg.TrendThreshold)
}

// rollingAccStd is the std of second differences over the trailing window
// ending just before index i.
func (m *temporalModel) rollingAccStd(values []float64, i int) float64 {
	lo := i - trendRollingWindow
	if lo < 2 {
		lo = 2
	}
	if i-lo < 2 {
		return m.accStd
	}
	accs := make([]float64, 0, i-lo)
	for j := lo; j < i; j++ {
		accs = append(accs, values[j]-2*values[j-1]+values[j-2])
	}
	_, std := meanStd(accs)
	if negligible(std, m.diffMean) {
		return m.accStd
	}
	return std
}

func (m *temporalModel) seasonalScore(index int, p models.MetricPoint) float64 {
	if m.phaseCount == nil || m.overallStd == 0 {
		return 0
	}
	ph := m.phase(index, p)
	if ph < 0 {
		return 0
	}
	count := m.phaseCount[ph]
	if count < 2 {
		// a gap left this phase without history; seasonal continuity is
		// broken, not an error
		return 0
	}
	// exclude the point itself from its phase average when it contributed
	sum, n := m.phaseSum[ph], float64(count)
	if index < len(m.points) {
		sum -= p.Value
		n--
	}
	if n < 1 {
		return 0
	}
	expected := sum / n
	z := math.Abs(p.Value-expected) / m.overallStd
	return clip01(z / seasonalStdMultiple)
}

// negligible reports whether x is indistinguishable from float rounding noise
// at the given scale.
func negligible(x, scale float64) bool {
	s := math.Abs(scale)
	if s < 1 {
		s = 1
	}
	return math.Abs(x) <= 1e-9*s
}

func maxOf3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
