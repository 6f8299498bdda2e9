package detector

import (
	"errors"
	"math"
	"testing"

	"FlockWatch/internal/domain/models"
)

func TestStatisticalFlagsSpike(t *testing.T) {
	w := dailyWindow(models.MetricTemperature, spikedSeries(30, 15, 45.0))

	d := &StatisticalDetector{cfg: DefaultConfig()}
	model, err := d.Fit(w)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	results := model.Score(w.Points)
	if len(results) != 30 {
		t.Fatalf("expected 30 results, got %d", len(results))
	}

	spike := results[15]
	if spike.NormalizedScore != 1.0 {
		t.Fatalf("45C spike should saturate the statistical score, got %v", spike.NormalizedScore)
	}

	for i, r := range results {
		if i == 15 {
			continue
		}
		if r.NormalizedScore >= spike.NormalizedScore {
			t.Fatalf("in-band point %d (value %v) scored %v, not below the spike", i, r.Value, r.NormalizedScore)
		}
	}
}

func TestStatisticalConstantWindow(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 21.5
	}
	d := &StatisticalDetector{cfg: DefaultConfig()}
	if _, err := d.Fit(dailyWindow(models.MetricTemperature, values)); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("constant window must be insufficient data, got %v", err)
	}
}

func TestStatisticalTooFewSamples(t *testing.T) {
	d := &StatisticalDetector{cfg: DefaultConfig()}
	if _, err := d.Fit(dailyWindow(models.MetricTemperature, []float64{20, 21, 22, 23})); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("4 samples must be insufficient data, got %v", err)
	}
}

func TestStatisticalScoreAtRuleBoundary(t *testing.T) {
	values := []float64{18, 19, 20, 21, 22, 20, 19, 21, 20, 20}
	w := dailyWindow(models.MetricTemperature, values)

	d := &StatisticalDetector{cfg: DefaultConfig()}
	model, err := d.Fit(w)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	sm := model.(*statisticalModel)

	// A value exactly z_threshold stds above the mean scores 1.0 under the z rule.
	boundary := sm.Mean() + sm.zMax*sm.std
	got := model.Score([]models.MetricPoint{{Value: boundary}})[0].NormalizedScore
	if math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("value at z boundary should score 1.0, got %v", got)
	}

	// The fitted mean itself scores 0 under the z rule.
	atMean := model.Score([]models.MetricPoint{{Value: sm.Mean()}})[0]
	if atMean.RawScore != 0 {
		t.Fatalf("value at mean should have zero z-score, got %v", atMean.RawScore)
	}
}

func TestStatisticalFenceRule(t *testing.T) {
	values := []float64{18, 19, 20, 21, 22, 20, 19, 21, 20, 20}
	w := dailyWindow(models.MetricTemperature, values)

	d := &StatisticalDetector{cfg: DefaultConfig()}
	model, err := d.Fit(w)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	sm := model.(*statisticalModel)

	// A value exactly on the upper Tukey fence scores 1.0.
	fence := sm.q3 + sm.fence*sm.iqr
	got := model.Score([]models.MetricPoint{{Value: fence}})[0].NormalizedScore
	if math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("value at Tukey fence should score 1.0, got %v", got)
	}

	// Inside the quartile box only the z rule applies.
	inside := (sm.q1 + sm.q3) / 2
	if d := sm.fenceDistance(inside); d != 0 {
		t.Fatalf("value inside quartile box should have zero fence distance, got %v", d)
	}
}

func TestQuartilesInterpolate(t *testing.T) {
	q1, q3 := quartiles([]float64{1, 2, 3, 4})
	if math.Abs(q1-1.75) > 1e-9 || math.Abs(q3-3.25) > 1e-9 {
		t.Fatalf("expected quartiles 1.75/3.25, got %v/%v", q1, q3)
	}
}
