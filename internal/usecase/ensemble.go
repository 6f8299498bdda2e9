package usecase

import (
	"context"
	"fmt"

	"FlockWatch/internal/domain/models"
	"FlockWatch/internal/services/detector"
	"FlockWatch/internal/services/registry"
)

// Ensemble combines the detector variants into one calibrated score per
// point. Fitted models come from the registry, so repeated calls for the same
// (room, metric) reuse models within the TTL.
type Ensemble struct {
	reg        *registry.Registry
	weights    models.EnsembleWeights
	thresholds models.SeverityThresholds
}

func NewEnsemble(reg *registry.Registry, weights models.EnsembleWeights, thresholds models.SeverityThresholds) *Ensemble {
	if weights == nil {
		weights = models.DefaultEnsembleWeights()
	}
	return &Ensemble{reg: reg, weights: weights, thresholds: thresholds}
}

// Detect scores points against the detector set fitted over window.
//
// Per point: combined = Σ(weight_k · score_k) / Σ(weight_k) over the
// detectors that actually scored, so a skipped detector is excluded from both
// sides rather than counted as zero. weights overrides the deployment default
// when non-nil. The fitted set is returned for explanation.
func (e *Ensemble) Detect(ctx context.Context, window *models.SignalWindow, points []models.MetricPoint, weights models.EnsembleWeights) ([]models.EnsembleScore, *registry.FittedSet, error) {
	if weights == nil {
		weights = e.weights
	}
	if err := weights.Validate(); err != nil {
		return nil, nil, fmt.Errorf("ensemble weights: %w", err)
	}

	key := registry.Key{RoomID: window.RoomID, Metric: window.Metric}
	set, err := e.reg.GetOrFit(ctx, key, window)
	if err != nil {
		return nil, nil, err
	}

	// kind -> per-point results, detectors in fixed ensemble order
	perKind := make(map[models.DetectorKind][]models.DetectionResult, len(set.Models))
	for kind, model := range set.Models {
		perKind[kind] = model.Score(points)
	}
	if len(perKind) == 0 {
		return nil, nil, detector.ErrAllDetectorsFailed
	}

	scores := make([]models.EnsembleScore, len(points))
	for i, p := range points {
		var weighted, weightSum float64
		contributing := make([]models.Contribution, 0, len(perKind))
		for _, kind := range models.AllDetectorKinds() {
			results, ok := perKind[kind]
			if !ok {
				continue
			}
			w := weights[kind]
			s := results[i].NormalizedScore
			weighted += w * s
			weightSum += w
			contributing = append(contributing, models.Contribution{
				Kind:            kind,
				Weight:          w,
				NormalizedScore: s,
			})
		}
		if weightSum <= 0 {
			return nil, nil, detector.ErrAllDetectorsFailed
		}

		combined := weighted / weightSum
		score := models.EnsembleScore{
			Metric:        window.Metric,
			Value:         p.Value,
			PointIndex:    i,
			CombinedScore: combined,
			Severity:      e.thresholds.Classify(combined),
			Contributing:  contributing,
		}
		score.SortContributions()
		scores[i] = score
	}
	return scores, set, nil
}
