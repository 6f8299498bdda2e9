package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FlockWatch/internal/domain/models"
	"FlockWatch/internal/services/detector"
	"FlockWatch/pkg/logger"
)

type fakeMetrics struct {
	mu     sync.Mutex
	events map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{events: make(map[string]int)}
}

func (m *fakeMetrics) RecordDetection(string, string) {}
func (m *fakeMetrics) RecordAnomaly(string)           {}
func (m *fakeMetrics) RecordError(string)             {}
func (m *fakeMetrics) RecordLatency(string, float64)  {}

func (m *fakeMetrics) RecordRegistry(event string) {
	m.mu.Lock()
	m.events[event]++
	m.mu.Unlock()
}

func (m *fakeMetrics) count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[event]
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func testWindow(n int) *models.SignalWindow {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	points := make([]models.MetricPoint, n)
	for i := range points {
		points[i] = models.MetricPoint{
			Timestamp: start.Add(time.Duration(i) * 24 * time.Hour),
			Value:     20 + float64(i%6),
		}
	}
	return &models.SignalWindow{
		RoomID:  "room-1",
		Metric:  models.MetricTemperature,
		Points:  points,
		Days:    n,
		Cadence: 24 * time.Hour,
	}
}

func TestGetOrFitCachesAndHits(t *testing.T) {
	m := newFakeMetrics()
	r := New(detector.DefaultConfig(), time.Hour, testLogger(t), m)
	key := Key{RoomID: "room-1", Metric: models.MetricTemperature}
	w := testWindow(30)

	first, err := r.GetOrFit(context.Background(), key, w)
	if err != nil {
		t.Fatalf("first fit: %v", err)
	}
	if len(first.Models) != 4 {
		t.Fatalf("30-sample window should fit all 4 detectors, got %d (skipped: %v)", len(first.Models), first.Skipped)
	}

	second, err := r.GetOrFit(context.Background(), key, w)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second != first {
		t.Fatal("cache hit must return the same fitted set")
	}
	if m.count("miss") != 1 || m.count("hit") != 1 {
		t.Fatalf("expected 1 miss + 1 hit, got miss=%d hit=%d", m.count("miss"), m.count("hit"))
	}
}

func TestGetOrFitCoalescesConcurrentCallers(t *testing.T) {
	m := newFakeMetrics()
	r := New(detector.DefaultConfig(), time.Hour, testLogger(t), m)
	key := Key{RoomID: "room-1", Metric: models.MetricTemperature}
	w := testWindow(60)

	const callers = 16
	var (
		wg      sync.WaitGroup
		gate    = make(chan struct{})
		results [callers]*FittedSet
		errs    [callers]error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-gate
			results[i], errs[i] = r.GetOrFit(context.Background(), key, w)
		}(i)
	}
	close(gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("caller %d received a different fitted set", i)
		}
	}
	if got := m.count("miss"); got != 1 {
		t.Fatalf("concurrent callers for one key must trigger exactly 1 fit, got %d", got)
	}
}

func TestGetOrFitDistinctKeysDoNotShare(t *testing.T) {
	r := New(detector.DefaultConfig(), time.Hour, testLogger(t), nil)
	w := testWindow(30)

	a, err := r.GetOrFit(context.Background(), Key{RoomID: "room-a", Metric: models.MetricTemperature}, w)
	if err != nil {
		t.Fatalf("room-a: %v", err)
	}
	b, err := r.GetOrFit(context.Background(), Key{RoomID: "room-b", Metric: models.MetricTemperature}, w)
	if err != nil {
		t.Fatalf("room-b: %v", err)
	}
	if a == b {
		t.Fatal("distinct keys must have independent fitted sets")
	}
}

func TestGetOrFitTTLExpiryRefits(t *testing.T) {
	m := newFakeMetrics()
	r := New(detector.DefaultConfig(), time.Hour, testLogger(t), m)
	key := Key{RoomID: "room-1", Metric: models.MetricTemperature}
	w := testWindow(30)

	clock := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	first, err := r.GetOrFit(context.Background(), key, w)
	if err != nil {
		t.Fatalf("first fit: %v", err)
	}

	clock = clock.Add(2 * time.Hour)
	second, err := r.GetOrFit(context.Background(), key, w)
	if err != nil {
		t.Fatalf("refit after expiry: %v", err)
	}
	if second == first {
		t.Fatal("expired entry must be refit, not reused")
	}
	if m.count("miss") != 2 {
		t.Fatalf("expected 2 misses across expiry, got %d", m.count("miss"))
	}
}

func TestGetOrFitSkipsInsufficientDetectors(t *testing.T) {
	r := New(detector.DefaultConfig(), time.Hour, testLogger(t), nil)
	key := Key{RoomID: "room-1", Metric: models.MetricTemperature}

	// 7 samples: enough for statistical and temporal, not for the
	// isolation-forest and density detectors.
	set, err := r.GetOrFit(context.Background(), key, testWindow(7))
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if _, ok := set.Models[models.KindStatistical]; !ok {
		t.Fatal("statistical detector should fit 7 samples")
	}
	if _, ok := set.Models[models.KindTemporal]; !ok {
		t.Fatal("temporal detector should fit 7 samples")
	}
	if _, ok := set.Skipped[models.KindGlobalOutlier]; !ok {
		t.Fatal("global outlier detector should be skipped on 7 samples")
	}
	if _, ok := set.Skipped[models.KindLocalDensity]; !ok {
		t.Fatal("local density detector should be skipped on 7 samples")
	}
}

func TestGetOrFitFailureRetainsOldEntry(t *testing.T) {
	r := New(detector.DefaultConfig(), time.Hour, testLogger(t), nil)
	key := Key{RoomID: "room-1", Metric: models.MetricTemperature}

	clock := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	good, err := r.GetOrFit(context.Background(), key, testWindow(30))
	if err != nil {
		t.Fatalf("good fit: %v", err)
	}

	clock = clock.Add(2 * time.Hour)
	if _, err := r.GetOrFit(context.Background(), key, testWindow(2)); !errors.Is(err, ErrFitFailure) {
		t.Fatalf("2-sample window must fail every detector, got %v", err)
	}

	r.mu.Lock()
	e, ok := r.entries[key]
	r.mu.Unlock()
	if !ok || e.set != good {
		t.Fatal("failed refit must retain the previous fitted set")
	}
}

func TestInvalidate(t *testing.T) {
	m := newFakeMetrics()
	r := New(detector.DefaultConfig(), time.Hour, testLogger(t), m)
	key := Key{RoomID: "room-1", Metric: models.MetricTemperature}
	w := testWindow(30)

	if _, err := r.GetOrFit(context.Background(), key, w); err != nil {
		t.Fatalf("fit: %v", err)
	}
	r.Invalidate(key)
	if _, err := r.GetOrFit(context.Background(), key, w); err != nil {
		t.Fatalf("refit: %v", err)
	}
	if m.count("miss") != 2 {
		t.Fatalf("invalidation must force a refit, got %d misses", m.count("miss"))
	}
}
