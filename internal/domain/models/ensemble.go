package models

import (
	"fmt"
	"sort"
)

// DetectorKind tags one of the four detection strategies. The set is closed:
// severity and explanation mapping switch over it exhaustively.
type DetectorKind string

const (
	KindGlobalOutlier DetectorKind = "global_outlier"
	KindLocalDensity  DetectorKind = "local_density"
	KindStatistical   DetectorKind = "statistical"
	KindTemporal      DetectorKind = "temporal"
)

// AllDetectorKinds lists the closed detector set in ensemble order.
func AllDetectorKinds() []DetectorKind {
	return []DetectorKind{KindGlobalOutlier, KindLocalDensity, KindStatistical, KindTemporal}
}

// DetectionResult is one detector's score for one point.
type DetectionResult struct {
	Metric          MetricName
	Value           float64
	RawScore        float64
	NormalizedScore float64 // in [0,1], 1 = maximally anomalous
	Kind            DetectorKind
}

// Contribution is one detector's share of a combined score.
type Contribution struct {
	Kind            DetectorKind `json:"kind"`
	Weight          float64      `json:"weight"`
	NormalizedScore float64      `json:"normalized_score"`
}

// Weighted returns the contribution's weighted score.
func (c Contribution) Weighted() float64 { return c.Weight * c.NormalizedScore }

// EnsembleScore is the weighted combination of all detector results for one point.
type EnsembleScore struct {
	Metric        MetricName     `json:"metric_name"`
	Value         float64        `json:"value"`
	PointIndex    int            `json:"-"`
	CombinedScore float64        `json:"combined_score"`
	Severity      Severity       `json:"severity"`
	Contributing  []Contribution `json:"contributing_detectors"`
}

// SortContributions orders contributing detectors by weighted contribution descending.
func (s *EnsembleScore) SortContributions() {
	sort.SliceStable(s.Contributing, func(i, j int) bool {
		return s.Contributing[i].Weighted() > s.Contributing[j].Weighted()
	})
}

// EnsembleWeights maps each detector kind to its combination weight.
type EnsembleWeights map[DetectorKind]float64

// DefaultEnsembleWeights returns the deployment default weighting.
func DefaultEnsembleWeights() EnsembleWeights {
	return EnsembleWeights{
		KindGlobalOutlier: 0.3,
		KindLocalDensity:  0.3,
		KindStatistical:   0.2,
		KindTemporal:      0.2,
	}
}

// Validate rejects negative or all-zero weights.
func (w EnsembleWeights) Validate() error {
	var sum float64
	for kind, v := range w {
		if v < 0 {
			return fmt.Errorf("ensemble weight for %s is negative", kind)
		}
		sum += v
	}
	if sum <= 0 {
		return fmt.Errorf("ensemble weights sum to zero")
	}
	return nil
}

// Normalized returns a copy scaled so weights sum to 1.0.
func (w EnsembleWeights) Normalized() EnsembleWeights {
	var sum float64
	for _, v := range w {
		sum += v
	}
	out := make(EnsembleWeights, len(w))
	if sum <= 0 {
		return out
	}
	for kind, v := range w {
		out[kind] = v / sum
	}
	return out
}

// SeverityThresholds holds the combined-score cut points for the three tiers.
// Thresholds are configuration, not hardwired into the combiner.
type SeverityThresholds struct {
	Medium float64 // combined >= Medium -> at least medium
	High   float64 // combined >= High -> high
}

// DefaultSeverityThresholds returns the standard low/medium/high mapping.
func DefaultSeverityThresholds() SeverityThresholds {
	return SeverityThresholds{Medium: 0.5, High: 0.8}
}

// Classify maps a combined score to a severity tier. Boundary-exact:
// score == Medium is medium, score == High is high.
func (t SeverityThresholds) Classify(combined float64) Severity {
	switch {
	case combined >= t.High:
		return SeverityHigh
	case combined >= t.Medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
