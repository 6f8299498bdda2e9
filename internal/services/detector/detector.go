// Package detector implements the anomaly detection strategies that make up
// the ensemble: global outlier (isolation forest), local density (LOF),
// statistical thresholds (z-score + Tukey fences) and temporal patterns.
// Every strategy normalizes its scores to [0,1] where 1.0 is maximally
// anomalous, so the coordinator can combine them without per-detector
// calibration.
package detector

import (
	"errors"
	"fmt"

	"FlockWatch/internal/domain/models"
)

var (
	// ErrInsufficientData means a window is too small or degenerate for one
	// detector. That detector is skipped; the ensemble continues without it.
	ErrInsufficientData = errors.New("insufficient data to fit detector")

	// ErrAllDetectorsFailed means no detector produced a usable score.
	// A confident score from zero successful detectors must never exist.
	ErrAllDetectorsFailed = errors.New("all detectors failed to fit or score")
)

// Detector fits a model over a signal window. Fitting may be expensive;
// scoring against a fitted Model is read-only and cheap.
type Detector interface {
	Kind() models.DetectorKind
	Fit(w *models.SignalWindow) (Model, error)
}

// Model is opaque fitted state, immutable once fit. Refitting produces a
// replacement Model, never a mutation.
type Model interface {
	Kind() models.DetectorKind
	Score(points []models.MetricPoint) []models.DetectionResult
}

// Config carries every detector hyperparameter. Passed explicitly per
// deployment or per call; detectors keep no hidden global state.
type Config struct {
	Seed              int64   `yaml:"seed"`
	Trees             int     `yaml:"trees"`
	SubsampleSize     int     `yaml:"subsample_size"`
	Neighbors         int     `yaml:"neighbors"`
	ZThreshold        float64 `yaml:"z_threshold"`
	IQRMultiplier     float64 `yaml:"iqr_multiplier"`
	TrendThreshold    float64 `yaml:"trend_threshold"`
	VelocityThreshold float64 `yaml:"velocity_threshold"`
	SeasonLength      int     `yaml:"season_length"` // samples per cycle; 0 disables seasonal scoring
}

// DefaultConfig returns the standard hyperparameters.
func DefaultConfig() Config {
	return Config{
		Seed:              42,
		Trees:             100,
		SubsampleSize:     256,
		Neighbors:         20,
		ZThreshold:        3.0,
		IQRMultiplier:     1.5,
		TrendThreshold:    2.0,
		VelocityThreshold: 2.0,
		SeasonLength:      7,
	}
}

// Normalize fills zero-valued fields with defaults.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.Trees <= 0 {
		c.Trees = d.Trees
	}
	if c.SubsampleSize <= 0 {
		c.SubsampleSize = d.SubsampleSize
	}
	if c.Neighbors <= 0 {
		c.Neighbors = d.Neighbors
	}
	if c.ZThreshold <= 0 {
		c.ZThreshold = d.ZThreshold
	}
	if c.IQRMultiplier <= 0 {
		c.IQRMultiplier = d.IQRMultiplier
	}
	if c.TrendThreshold <= 0 {
		c.TrendThreshold = d.TrendThreshold
	}
	if c.VelocityThreshold <= 0 {
		c.VelocityThreshold = d.VelocityThreshold
	}
	return c
}

// New constructs the detector for one kind.
func New(kind models.DetectorKind, cfg Config) (Detector, error) {
	cfg = cfg.Normalize()
	switch kind {
	case models.KindGlobalOutlier:
		return &GlobalOutlierDetector{cfg: cfg}, nil
	case models.KindLocalDensity:
		return &LocalDensityDetector{cfg: cfg}, nil
	case models.KindStatistical:
		return &StatisticalDetector{cfg: cfg}, nil
	case models.KindTemporal:
		return &TemporalDetector{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown detector kind: %s", kind)
	}
}

// All constructs the full closed detector set in ensemble order.
func All(cfg Config) []Detector {
	out := make([]Detector, 0, 4)
	for _, kind := range models.AllDetectorKinds() {
		d, _ := New(kind, cfg)
		out = append(out, d)
	}
	return out
}

// featureVectors builds the per-point multivariate features used by the
// partition and density detectors: the raw value and its first difference.
func featureVectors(points []models.MetricPoint) [][]float64 {
	feats := make([][]float64, len(points))
	for i, p := range points {
		var delta float64
		if i > 0 {
			delta = p.Value - points[i-1].Value
		}
		feats[i] = []float64{p.Value, delta}
	}
	return feats
}

// minMaxNormalize rescales raw scores to [0,1] across the batch. A degenerate
// batch (all scores equal) normalizes to all zeros: with no contrast there is
// no anomaly.
func minMaxNormalize(raw []float64) []float64 {
	out := make([]float64, len(raw))
	if len(raw) == 0 {
		return out
	}
	lo, hi := raw[0], raw[0]
	for _, v := range raw[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return out
	}
	for i, v := range raw {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

// clip01 bounds a score to [0,1].
func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
