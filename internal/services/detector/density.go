package detector

import (
	"fmt"
	"math"
	"sort"

	"FlockWatch/internal/domain/models"
)

// LocalDensityDetector scores a point by comparing its local neighborhood
// density against that of its k nearest neighbors (local outlier factor).
// Non-parametric: fit retains the training window verbatim, scoring does the
// heavy lifting.
type LocalDensityDetector struct {
	cfg Config
}

func (d *LocalDensityDetector) Kind() models.DetectorKind { return models.KindLocalDensity }

func (d *LocalDensityDetector) Fit(w *models.SignalWindow) (Model, error) {
	k := d.cfg.Neighbors
	if w.Len() <= k {
		return nil, fmt.Errorf("%w: local density needs > %d samples, have %d",
			ErrInsufficientData, k, w.Len())
	}
	return &localDensityModel{
		metric:   w.Metric,
		training: featureVectors(w.Points),
		k:        k,
	}, nil
}

type localDensityModel struct {
	metric   models.MetricName
	training [][]float64
	k        int
}

func (m *localDensityModel) Kind() models.DetectorKind { return models.KindLocalDensity }

func (m *localDensityModel) Score(points []models.MetricPoint) []models.DetectionResult {
	batch := featureVectors(points)

	// LOF over training + batch combined; only the batch portion is reported.
	combined := make([][]float64, 0, len(m.training)+len(batch))
	combined = append(combined, m.training...)
	combined = append(combined, batch...)

	factors := localOutlierFactors(combined, m.k)
	raw := factors[len(m.training):]
	normalized := minMaxNormalize(raw)

	out := make([]models.DetectionResult, len(points))
	for i, p := range points {
		out[i] = models.DetectionResult{
			Metric:          m.metric,
			Value:           p.Value,
			RawScore:        raw[i],
			NormalizedScore: normalized[i],
			Kind:            models.KindLocalDensity,
		}
	}
	return out
}

// localOutlierFactors computes the classic LOF value for every row.
// O(n^2) distances; windows are caller-bounded so this stays tractable.
func localOutlierFactors(rows [][]float64, k int) []float64 {
	n := len(rows)
	if k >= n {
		k = n - 1
	}
	if k < 1 {
		return make([]float64, n)
	}

	type neighbor struct {
		idx  int
		dist float64
	}

	neighbors := make([][]neighbor, n)
	kDist := make([]float64, n)
	for i := 0; i < n; i++ {
		ds := make([]neighbor, 0, n-1)
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			ds = append(ds, neighbor{idx: j, dist: euclidean(rows[i], rows[j])})
		}
		sort.Slice(ds, func(a, b int) bool { return ds[a].dist < ds[b].dist })
		neighbors[i] = ds[:k]
		kDist[i] = ds[k-1].dist
	}

	// local reachability density; epsilon keeps duplicate-heavy windows finite
	const eps = 1e-10
	lrd := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for _, nb := range neighbors[i] {
			reach := nb.dist
			if kDist[nb.idx] > reach {
				reach = kDist[nb.idx]
			}
			sum += reach
		}
		lrd[i] = float64(k) / (sum + eps)
	}

	lof := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for _, nb := range neighbors[i] {
			sum += lrd[nb.idx] / lrd[i]
		}
		lof[i] = sum / float64(k)
	}
	return lof
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
