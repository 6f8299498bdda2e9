package detector

import (
	"fmt"
	"math"

	"FlockWatch/internal/domain/models"
)

// dominanceShare is the fraction of the combined score one detector must
// contribute before the anomaly is typed by that detector alone.
const dominanceShare = 0.9

// Factor is one detector's ranked share of an anomaly explanation.
type Factor struct {
	Kind         models.DetectorKind `json:"kind"`
	Contribution float64             `json:"contribution"` // weight * normalized score
	Reason       string              `json:"reason"`
}

// Explanation is the structured answer to "why was this point flagged".
type Explanation struct {
	AnomalyType models.AnomalyType `json:"anomaly_type"`
	Factors     []Factor           `json:"factors"` // ordered by contribution desc
	Summary     string             `json:"summary"`
}

// Explain ranks the detectors behind an ensemble score and renders a reason
// per kind. fitted enriches the statistical reason with the actual z-score
// and baseline mean; windowDays labels the baseline period in the text.
func Explain(score models.EnsembleScore, fitted map[models.DetectorKind]Model, windowDays int) Explanation {
	score.SortContributions()

	var totalWeighted float64
	for _, c := range score.Contributing {
		totalWeighted += c.Weighted()
	}

	factors := make([]Factor, 0, len(score.Contributing))
	for _, c := range score.Contributing {
		factors = append(factors, Factor{
			Kind:         c.Kind,
			Contribution: c.Weighted(),
			Reason:       reasonFor(c, score, fitted, windowDays),
		})
	}

	out := Explanation{
		AnomalyType: anomalyType(score.Contributing, totalWeighted),
		Factors:     factors,
	}
	if len(factors) > 0 {
		out.Summary = factors[0].Reason
	}
	return out
}

// anomalyType maps a single dominant detector to its natural category;
// balanced contributions default to multivariate.
func anomalyType(contributing []models.Contribution, totalWeighted float64) models.AnomalyType {
	if totalWeighted <= 0 {
		return models.AnomalyMultivariate
	}
	for _, c := range contributing {
		if c.Weighted()/totalWeighted <= dominanceShare {
			continue
		}
		switch c.Kind {
		case models.KindStatistical:
			return models.AnomalyUnivariate
		case models.KindTemporal:
			return models.AnomalyTemporal
		case models.KindGlobalOutlier, models.KindLocalDensity:
			return models.AnomalyMultivariate
		}
	}
	return models.AnomalyMultivariate
}

func reasonFor(c models.Contribution, score models.EnsembleScore, fitted map[models.DetectorKind]Model, windowDays int) string {
	switch c.Kind {
	case models.KindStatistical:
		if m, ok := fitted[models.KindStatistical].(*statisticalModel); ok {
			z := math.Abs(m.ZScore(score.Value))
			return fmt.Sprintf("value %.2f is %.1f standard deviations from the %d-day mean %.2f",
				score.Value, z, windowDays, m.Mean())
		}
		return fmt.Sprintf("value %.2f breaches the statistical baseline (score %.2f)",
			score.Value, c.NormalizedScore)
	case models.KindGlobalOutlier:
		return fmt.Sprintf("point is isolated from the rest of the window far more easily than its peers (score %.2f)",
			c.NormalizedScore)
	case models.KindLocalDensity:
		return fmt.Sprintf("point sits in a much sparser neighborhood than its nearest neighbors (score %.2f)",
			c.NormalizedScore)
	case models.KindTemporal:
		return fmt.Sprintf("point breaks the recent trend, velocity or seasonal pattern of the series (score %.2f)",
			c.NormalizedScore)
	default:
		return fmt.Sprintf("detector %s flagged the point (score %.2f)", c.Kind, c.NormalizedScore)
	}
}
