package usecase

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"FlockWatch/internal/domain/models"
	domrepo "FlockWatch/internal/domain/repository"
)

type fakeWindows struct {
	windows map[string]map[models.MetricName]*models.SignalWindow // room -> metric -> window
	rooms   map[string][]string                                  // farm -> rooms
}

func (f *fakeWindows) FetchWindow(_ context.Context, roomID string, metric models.MetricName, _ int) (*models.SignalWindow, error) {
	if w, ok := f.windows[roomID][metric]; ok {
		return w, nil
	}
	return nil, domrepo.ErrNoData
}

func (f *fakeWindows) Rooms(_ context.Context, farmID string) ([]string, error) {
	return f.rooms[farmID], nil
}

type fakeStore struct {
	mu      sync.Mutex
	records map[string]models.AnomalyRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]models.AnomalyRecord)}
}

func (f *fakeStore) Persist(_ context.Context, rec *models.AnomalyRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.ID] = *rec
	return rec.ID, nil
}

func (f *fakeStore) Find(_ context.Context, id string) (*models.AnomalyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return &rec, nil
}

func (f *fakeStore) UpdateFeedback(_ context.Context, rec *models.AnomalyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[rec.ID]; !ok {
		return domrepo.ErrNotFound
	}
	f.records[rec.ID] = *rec
	return nil
}

func (f *fakeStore) ListByFarm(_ context.Context, farmID string, _ int) ([]models.AnomalyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.AnomalyRecord
	for _, rec := range f.records {
		if rec.FarmID == farmID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	fail      error
}

func (f *fakePublisher) Publish(_ context.Context, rec *models.AnomalyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.published = append(f.published, rec.ID)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

type fakeMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{errors: make(map[string]int)}
}

func (m *fakeMetrics) RecordDetection(string, string) {}
func (m *fakeMetrics) RecordAnomaly(string)           {}
func (m *fakeMetrics) RecordLatency(string, float64)  {}
func (m *fakeMetrics) RecordRegistry(string)          {}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func newTestUseCase(t *testing.T, windows *fakeWindows, store *fakeStore, pub *fakePublisher, sensitivity float64) *DetectionUseCase {
	t.Helper()
	ensemble := NewEnsemble(testRegistry(t), nil, models.DefaultSeverityThresholds())
	return NewDetectionUseCase(windows, store, pub, newFakeMetrics(), ensemble, testLogger(t), sensitivity)
}

func TestDetectRoomFlagsSpike(t *testing.T) {
	windows := &fakeWindows{
		windows: map[string]map[models.MetricName]*models.SignalWindow{
			"room-1": {
				models.MetricTemperature: windowOf("room-1", models.MetricTemperature, spikedValues(30, 15, 45)),
			},
		},
	}
	store := newFakeStore()
	pub := &fakePublisher{}
	uc := newTestUseCase(t, windows, store, pub, 0.6)

	resp, err := uc.DetectRoom(context.Background(), models.DetectRoomRequest{RoomID: "room-1", Days: 30})
	if err != nil {
		t.Fatalf("detect room: %v", err)
	}
	if resp.Count == 0 {
		t.Fatal("45C spike in a 20-25C band must be flagged")
	}
	if resp.Count != len(resp.Anomalies) {
		t.Fatalf("count %d != anomalies %d", resp.Count, len(resp.Anomalies))
	}

	var spike *models.AnomalyRecord
	for i := range resp.Anomalies {
		if resp.Anomalies[i].Value == 45 {
			spike = &resp.Anomalies[i]
			break
		}
	}
	if spike == nil {
		t.Fatal("the 45C point itself must be among the flagged anomalies")
	}
	if spike.MetricName != models.MetricTemperature || spike.RoomID != "room-1" {
		t.Fatalf("anomaly carries wrong identity: %+v", spike)
	}
	if spike.State != models.StateDetected {
		t.Fatalf("new anomaly must start in detected state, got %s", spike.State)
	}
	if spike.ID == "" || spike.Description == "" {
		t.Fatalf("anomaly must carry an ID and a description: %+v", spike)
	}
	if spike.Severity != models.SeverityHigh {
		t.Fatalf("45C spike must classify as high severity, got %s", spike.Severity)
	}
	// The spike saturates all four detectors, so no single detector passes the
	// dominance threshold and the point is typed multivariate.
	if spike.AnomalyType != models.AnomalyMultivariate {
		t.Fatalf("saturating spike must be typed multivariate, got %s", spike.AnomalyType)
	}

	// ordering: combined scores descending
	for i := 1; i < len(resp.Anomalies); i++ {
		if resp.Anomalies[i].CombinedScore > resp.Anomalies[i-1].CombinedScore {
			t.Fatal("anomalies not sorted by combined score descending")
		}
	}

	if store.count() != resp.Count {
		t.Fatalf("every returned anomaly must be persisted: store %d, resp %d", store.count(), resp.Count)
	}
	if pub.count() != resp.Count {
		t.Fatalf("every persisted anomaly must be published: pub %d, resp %d", pub.count(), resp.Count)
	}
}

func TestDetectRoomNoData(t *testing.T) {
	uc := newTestUseCase(t, &fakeWindows{windows: map[string]map[models.MetricName]*models.SignalWindow{}}, newFakeStore(), &fakePublisher{}, 0)

	if _, err := uc.DetectRoom(context.Background(), models.DetectRoomRequest{RoomID: "empty-room", Days: 7}); !errors.Is(err, domrepo.ErrNoData) {
		t.Fatalf("room without any data must fail with ErrNoData, got %v", err)
	}
}

func TestDetectRoomPublishFailureDoesNotFailDetection(t *testing.T) {
	windows := &fakeWindows{
		windows: map[string]map[models.MetricName]*models.SignalWindow{
			"room-1": {
				models.MetricTemperature: windowOf("room-1", models.MetricTemperature, spikedValues(30, 15, 45)),
			},
		},
	}
	store := newFakeStore()
	pub := &fakePublisher{fail: errors.New("broker down")}
	uc := newTestUseCase(t, windows, store, pub, 0.6)

	resp, err := uc.DetectRoom(context.Background(), models.DetectRoomRequest{RoomID: "room-1", Days: 30})
	if err != nil {
		t.Fatalf("publish failure must not fail detection: %v", err)
	}
	if resp.Count == 0 || store.count() != resp.Count {
		t.Fatalf("anomalies must still be persisted: resp %d, store %d", resp.Count, store.count())
	}
}

func TestDetectRoomConstantWindowFindsNothing(t *testing.T) {
	// Identical readings everywhere: the statistical detector is skipped for
	// zero variance and the rest see no contrast, so nothing is flagged.
	values := make([]float64, 30)
	for i := range values {
		values[i] = 21.5
	}
	windows := &fakeWindows{
		windows: map[string]map[models.MetricName]*models.SignalWindow{
			"room-1": {models.MetricTemperature: windowOf("room-1", models.MetricTemperature, values)},
		},
	}
	store := newFakeStore()
	uc := newTestUseCase(t, windows, store, &fakePublisher{}, 0.8)

	resp, err := uc.DetectRoom(context.Background(), models.DetectRoomRequest{RoomID: "room-1", Days: 30})
	if err != nil {
		t.Fatalf("detect room: %v", err)
	}
	if resp.Count != 0 || store.count() != 0 {
		t.Fatalf("constant window must not flag anything, got %d anomalies", resp.Count)
	}
}

func TestDetectFarmAggregates(t *testing.T) {
	// Two 45C spikes in room-a's 20-25C band, all ensemble weight on the
	// statistical detector so the expected counts are exact: both spikes sit
	// past the z and fence thresholds (score 1.0, high severity) while every
	// in-band point scores far below the 0.8 sensitivity.
	values := spikedValues(30, 10, 45)
	values[20] = 45
	windows := &fakeWindows{
		windows: map[string]map[models.MetricName]*models.SignalWindow{
			"room-a": {
				models.MetricTemperature: windowOf("room-a", models.MetricTemperature, values),
			},
			"room-b": {}, // room exists but has no observations
		},
		rooms: map[string][]string{"farm-1": {"room-a", "room-b"}},
	}
	store := newFakeStore()
	ensemble := NewEnsemble(testRegistry(t), models.EnsembleWeights{models.KindStatistical: 1}, models.DefaultSeverityThresholds())
	uc := NewDetectionUseCase(windows, store, &fakePublisher{}, newFakeMetrics(), ensemble, testLogger(t), 0.8)

	summary, err := uc.DetectFarm(context.Background(), models.DetectFarmRequest{FarmID: "farm-1", Days: 30})
	if err != nil {
		t.Fatalf("detect farm: %v", err)
	}

	if summary.FarmID != "farm-1" || summary.PeriodDays != 30 {
		t.Fatalf("summary identity wrong: %+v", summary)
	}
	if summary.TotalAnomalies != 2 || len(summary.Anomalies) != 2 {
		t.Fatalf("expected exactly the 2 spikes, got total %d, anomalies %d",
			summary.TotalAnomalies, len(summary.Anomalies))
	}
	if want := (map[string]int{"room-a": 2, "room-b": 0}); !reflect.DeepEqual(summary.ByRoom, want) {
		t.Fatalf("by_room = %v, want %v", summary.ByRoom, want)
	}
	if want := (map[models.Severity]int{models.SeverityHigh: 2}); !reflect.DeepEqual(summary.BySeverity, want) {
		t.Fatalf("by_severity = %v, want %v", summary.BySeverity, want)
	}
	for _, rec := range summary.Anomalies {
		if rec.Value != 45 || rec.Severity != models.SeverityHigh {
			t.Fatalf("unexpected anomaly in farm summary: %+v", rec)
		}
	}
}

func TestDetectFarmSeverityFilter(t *testing.T) {
	windows := &fakeWindows{
		windows: map[string]map[models.MetricName]*models.SignalWindow{
			"room-a": {
				models.MetricTemperature: windowOf("room-a", models.MetricTemperature, spikedValues(30, 15, 45)),
			},
		},
		rooms: map[string][]string{"farm-1": {"room-a"}},
	}
	uc := newTestUseCase(t, windows, newFakeStore(), &fakePublisher{}, 0.6)

	summary, err := uc.DetectFarm(context.Background(), models.DetectFarmRequest{FarmID: "farm-1", Days: 30, Severity: "high"})
	if err != nil {
		t.Fatalf("detect farm: %v", err)
	}
	for _, rec := range summary.Anomalies {
		if rec.Severity != models.SeverityHigh {
			t.Fatalf("severity filter leaked a %s anomaly", rec.Severity)
		}
	}
}

func TestDetectFarmNoRooms(t *testing.T) {
	uc := newTestUseCase(t, &fakeWindows{rooms: map[string][]string{}}, newFakeStore(), &fakePublisher{}, 0)

	if _, err := uc.DetectFarm(context.Background(), models.DetectFarmRequest{FarmID: "ghost-farm", Days: 7}); !errors.Is(err, domrepo.ErrNoData) {
		t.Fatalf("farm without rooms must fail with ErrNoData, got %v", err)
	}
}

func TestGetAnomaly(t *testing.T) {
	store := newFakeStore()
	store.records["a-1"] = models.AnomalyRecord{ID: "a-1", RoomID: "room-1"}
	uc := newTestUseCase(t, &fakeWindows{}, store, &fakePublisher{}, 0)

	rec, err := uc.GetAnomaly(context.Background(), "a-1")
	if err != nil || rec.RoomID != "room-1" {
		t.Fatalf("lookup failed: %v %+v", err, rec)
	}
	if _, err := uc.GetAnomaly(context.Background(), "missing"); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatalf("unknown id must be ErrNotFound, got %v", err)
	}
}
