package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"FlockWatch/internal/domain/models"
	"FlockWatch/internal/services/detector"
	"FlockWatch/internal/services/registry"
	"FlockWatch/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	return registry.New(detector.DefaultConfig(), time.Hour, testLogger(t), nil)
}

func windowOf(roomID string, metric models.MetricName, values []float64) *models.SignalWindow {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	points := make([]models.MetricPoint, len(values))
	for i, v := range values {
		points[i] = models.MetricPoint{Timestamp: start.Add(time.Duration(i) * 24 * time.Hour), Value: v}
	}
	return &models.SignalWindow{
		RoomID:  roomID,
		FarmID:  "farm-1",
		Metric:  metric,
		Points:  points,
		Days:    len(values),
		Cadence: 24 * time.Hour,
	}
}

// spikedValues returns n values in the 20-25 band with one spike.
func spikedValues(n, spikeIdx int, spike float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = 20.0 + float64(i%6)
	}
	values[spikeIdx] = spike
	return values
}

func TestEnsembleRenormalizesOverScoredDetectors(t *testing.T) {
	// 7 samples: only the statistical and temporal detectors fit, so the
	// combined score must be renormalized over their weights alone.
	e := NewEnsemble(testRegistry(t), nil, models.DefaultSeverityThresholds())
	w := windowOf("room-1", models.MetricTemperature, []float64{20, 21, 20, 22, 21, 20, 21})

	scores, set, err := e.Detect(context.Background(), w, w.Points, nil)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(set.Models) != 2 {
		t.Fatalf("expected 2 fitted models on 7 samples, got %d", len(set.Models))
	}

	for i, s := range scores {
		if len(s.Contributing) != 2 {
			t.Fatalf("point %d: expected 2 contributions, got %d", i, len(s.Contributing))
		}
		var weighted, weightSum float64
		for _, c := range s.Contributing {
			weighted += c.Weighted()
			weightSum += c.Weight
		}
		if math.Abs(s.CombinedScore-weighted/weightSum) > 1e-9 {
			t.Fatalf("point %d: combined %v != renormalized %v", i, s.CombinedScore, weighted/weightSum)
		}
	}
}

func TestEnsembleWeightOverride(t *testing.T) {
	e := NewEnsemble(testRegistry(t), nil, models.DefaultSeverityThresholds())
	w := windowOf("room-1", models.MetricTemperature, spikedValues(30, 15, 45))

	// All weight on the statistical detector: the combined score is its
	// normalized score verbatim.
	only := models.EnsembleWeights{models.KindStatistical: 1.0}
	scores, set, err := e.Detect(context.Background(), w, w.Points, only)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}

	statScores := set.Models[models.KindStatistical].Score(w.Points)
	for i, s := range scores {
		if math.Abs(s.CombinedScore-statScores[i].NormalizedScore) > 1e-9 {
			t.Fatalf("point %d: combined %v != statistical %v", i, s.CombinedScore, statScores[i].NormalizedScore)
		}
	}
}

func TestEnsembleRejectsInvalidWeights(t *testing.T) {
	e := NewEnsemble(testRegistry(t), nil, models.DefaultSeverityThresholds())
	w := windowOf("room-1", models.MetricTemperature, spikedValues(30, 15, 45))

	if _, _, err := e.Detect(context.Background(), w, w.Points, models.EnsembleWeights{models.KindStatistical: -1}); err == nil {
		t.Fatal("negative weights must be rejected")
	}
	if _, _, err := e.Detect(context.Background(), w, w.Points, models.EnsembleWeights{}); err == nil {
		t.Fatal("zero-sum weights must be rejected")
	}
}

func TestEnsembleSeverityFollowsThresholds(t *testing.T) {
	e := NewEnsemble(testRegistry(t), nil, models.DefaultSeverityThresholds())
	w := windowOf("room-1", models.MetricTemperature, spikedValues(30, 15, 45))

	scores, _, err := e.Detect(context.Background(), w, w.Points, nil)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	th := models.DefaultSeverityThresholds()
	for i, s := range scores {
		if s.Severity != th.Classify(s.CombinedScore) {
			t.Fatalf("point %d: severity %s does not match combined %v", i, s.Severity, s.CombinedScore)
		}
	}
}
