package detector

import (
	"errors"
	"testing"
	"time"

	"FlockWatch/internal/domain/models"
)

func TestTemporalSteadyTrendScoresLow(t *testing.T) {
	// A clean linear trend has constant first differences and zero second
	// differences; nothing about it is temporally anomalous. Seasonal scoring
	// is disabled so only velocity and trend rules apply.
	values := make([]float64, 28)
	for i := range values {
		values[i] = 2.0 + 0.05*float64(i)
	}
	w := dailyWindow(models.MetricWeight, values)

	cfg := DefaultConfig()
	cfg.SeasonLength = 0
	d := &TemporalDetector{cfg: cfg}
	model, err := d.Fit(w)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	for i, r := range model.Score(w.Points) {
		if r.NormalizedScore > 0.5 {
			t.Fatalf("steady trend point %d scored %v, expected low", i, r.NormalizedScore)
		}
	}
}

func TestTemporalFlagsVelocityJump(t *testing.T) {
	// Gentle noise, then one day jumps by an order of magnitude more than any
	// previous day-over-day change.
	values := []float64{20, 20.3, 19.8, 20.1, 20.4, 19.9, 20.2, 20.0, 20.3, 19.9,
		20.1, 20.2, 19.8, 20.0, 35.0, 20.1, 20.3, 19.9, 20.2, 20.0}
	w := dailyWindow(models.MetricTemperature, values)

	d := &TemporalDetector{cfg: DefaultConfig()}
	model, err := d.Fit(w)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	results := model.Score(w.Points)
	if results[14].NormalizedScore != 1.0 {
		t.Fatalf("velocity jump should saturate the temporal score, got %v", results[14].NormalizedScore)
	}
}

func TestTemporalScoreTail(t *testing.T) {
	values := []float64{20, 20.2, 19.9, 20.1, 20.0, 20.3, 19.8, 20.1, 20.2, 20.0}
	w := dailyWindow(models.MetricTemperature, values)

	d := &TemporalDetector{cfg: DefaultConfig()}
	model, err := d.Fit(w)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	// A point outside the fitted window is treated as the next element.
	next := models.MetricPoint{
		Timestamp: w.Points[len(w.Points)-1].Timestamp.Add(24 * time.Hour),
		Value:     40.0,
	}
	jump := model.Score([]models.MetricPoint{next})[0]
	if jump.NormalizedScore != 1.0 {
		t.Fatalf("out-of-window jump should saturate the temporal score, got %v", jump.NormalizedScore)
	}

	calm := models.MetricPoint{Timestamp: next.Timestamp, Value: 20.1}
	if got := model.Score([]models.MetricPoint{calm})[0].NormalizedScore; got > 0.5 {
		t.Fatalf("out-of-window in-band point scored %v, expected low", got)
	}
}

func TestTemporalToleratesGaps(t *testing.T) {
	// A missing day must not fail the fit; with a known cadence the seasonal
	// phase is timestamp-derived, so the gap shifts nothing.
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	points := make([]models.MetricPoint, 0, 27)
	for i := 0; i < 28; i++ {
		if i == 13 {
			continue
		}
		points = append(points, models.MetricPoint{
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Value:     20 + float64(i%7),
		})
	}
	w := &models.SignalWindow{
		RoomID:  "room-1",
		Metric:  models.MetricTemperature,
		Points:  points,
		Days:    28,
		Cadence: 24 * time.Hour,
	}

	d := &TemporalDetector{cfg: DefaultConfig()}
	model, err := d.Fit(w)
	if err != nil {
		t.Fatalf("gapped window must still fit: %v", err)
	}
	for i, r := range model.Score(points) {
		if r.NormalizedScore < 0 || r.NormalizedScore > 1 {
			t.Fatalf("point %d: score %v out of [0,1]", i, r.NormalizedScore)
		}
	}
}

func TestTemporalSeasonalDeviation(t *testing.T) {
	// Four clean weekly cycles, then the same cycle with one phase far off its
	// historical average.
	base := []float64{20, 22, 24, 26, 24, 22, 21}
	values := make([]float64, 0, 35)
	for cycle := 0; cycle < 5; cycle++ {
		values = append(values, base...)
	}
	values[31] = 45 // phase 3 of the last cycle, historically 26

	w := dailyWindow(models.MetricTemperature, values)
	d := &TemporalDetector{cfg: DefaultConfig()}
	model, err := d.Fit(w)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	results := model.Score(w.Points)
	if results[31].NormalizedScore < 0.9 {
		t.Fatalf("seasonal deviation should score high, got %v", results[31].NormalizedScore)
	}

	// The seasonal rule in isolation: the deviant phase saturates, a point
	// matching its phase history scores zero.
	tm := model.(*temporalModel)
	if got := tm.seasonalScore(31, w.Points[31]); got < 0.9 {
		t.Fatalf("deviant phase seasonal score %v, expected near 1.0", got)
	}
	if got := tm.seasonalScore(9, w.Points[9]); got != 0 {
		t.Fatalf("on-pattern phase seasonal score %v, expected 0", got)
	}
}

func TestTemporalTooFewSamples(t *testing.T) {
	d := &TemporalDetector{cfg: DefaultConfig()}
	if _, err := d.Fit(dailyWindow(models.MetricTemperature, []float64{20, 21})); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("2 samples must be insufficient data, got %v", err)
	}
}
