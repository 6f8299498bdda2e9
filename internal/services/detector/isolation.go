package detector

import (
	"fmt"
	"math"
	"math/rand"

	"FlockWatch/internal/domain/models"
)

const minIsolationSamples = 10

// GlobalOutlierDetector fits an isolation forest over the window's feature
// vectors. Points isolated by few random partitions (short average path)
// score as anomalous. Deterministic for a fixed seed.
type GlobalOutlierDetector struct {
	cfg Config
}

func (d *GlobalOutlierDetector) Kind() models.DetectorKind { return models.KindGlobalOutlier }

func (d *GlobalOutlierDetector) Fit(w *models.SignalWindow) (Model, error) {
	if w.Len() < minIsolationSamples {
		return nil, fmt.Errorf("%w: global outlier needs >= %d samples, have %d",
			ErrInsufficientData, minIsolationSamples, w.Len())
	}

	feats := featureVectors(w.Points)
	sub := d.cfg.SubsampleSize
	if sub > len(feats) {
		sub = len(feats)
	}

	rng := rand.New(rand.NewSource(d.cfg.Seed))
	maxDepth := int(math.Ceil(math.Log2(float64(sub)))) + 1
	trees := make([]*isoNode, d.cfg.Trees)
	for i := range trees {
		sample := sampleRows(feats, sub, rng)
		trees[i] = buildIsoTree(sample, 0, maxDepth, rng)
	}

	return &globalOutlierModel{
		metric: w.Metric,
		trees:  trees,
		norm:   avgPathNorm(sub),
	}, nil
}

type globalOutlierModel struct {
	metric models.MetricName
	trees  []*isoNode
	norm   float64 // c(subsample): expected path length baseline
}

func (m *globalOutlierModel) Kind() models.DetectorKind { return models.KindGlobalOutlier }

func (m *globalOutlierModel) Score(points []models.MetricPoint) []models.DetectionResult {
	feats := featureVectors(points)
	raw := make([]float64, len(feats))
	for i, x := range feats {
		var sum float64
		for _, t := range m.trees {
			sum += isoPathLength(x, t, 0)
		}
		avg := sum / float64(len(m.trees))
		// shorter path -> more anomalous; s in (0,1], higher = more anomalous
		raw[i] = math.Pow(2, -avg/m.norm)
	}
	normalized := minMaxNormalize(raw)

	out := make([]models.DetectionResult, len(points))
	for i, p := range points {
		out[i] = models.DetectionResult{
			Metric:          m.metric,
			Value:           p.Value,
			RawScore:        raw[i],
			NormalizedScore: normalized[i],
			Kind:            models.KindGlobalOutlier,
		}
	}
	return out
}

// isoNode is one node of a random partitioning tree.
type isoNode struct {
	feature  int
	split    float64
	left     *isoNode
	right    *isoNode
	size     int
	external bool
}

func buildIsoTree(sample [][]float64, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if len(sample) <= 1 || depth >= maxDepth {
		return &isoNode{external: true, size: len(sample)}
	}

	nFeatures := len(sample[0])
	feature := rng.Intn(nFeatures)
	lo, hi := sample[0][feature], sample[0][feature]
	for _, row := range sample[1:] {
		if row[feature] < lo {
			lo = row[feature]
		}
		if row[feature] > hi {
			hi = row[feature]
		}
	}
	if hi == lo {
		return &isoNode{external: true, size: len(sample)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, row := range sample {
		if row[feature] < split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isoNode{external: true, size: len(sample)}
	}

	return &isoNode{
		feature: feature,
		split:   split,
		left:    buildIsoTree(left, depth+1, maxDepth, rng),
		right:   buildIsoTree(right, depth+1, maxDepth, rng),
	}
}

func isoPathLength(x []float64, node *isoNode, depth int) float64 {
	if node.external {
		return float64(depth) + avgPathNorm(node.size)
	}
	if x[node.feature] < node.split {
		return isoPathLength(x, node.left, depth+1)
	}
	return isoPathLength(x, node.right, depth+1)
}

// avgPathNorm is c(n): the average path length of an unsuccessful BST search,
// used to normalize isolation depths.
func avgPathNorm(n int) float64 {
	if n <= 1 {
		return 0
	}
	const eulerMascheroni = 0.5772156649
	h := math.Log(float64(n-1)) + eulerMascheroni
	return 2*h - 2*float64(n-1)/float64(n)
}

func sampleRows(rows [][]float64, n int, rng *rand.Rand) [][]float64 {
	if n >= len(rows) {
		return rows
	}
	idx := rng.Perm(len(rows))[:n]
	out := make([][]float64, n)
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}
