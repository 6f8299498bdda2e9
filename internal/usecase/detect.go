package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"FlockWatch/internal/domain/models"
	domrepo "FlockWatch/internal/domain/repository"
	"FlockWatch/internal/services/detector"
	"FlockWatch/pkg/logger"
)

const defaultFarmWorkers = 4

// DetectionUseCase runs the full anomaly pipeline for rooms and farms:
// fetch windows, score through the ensemble, persist flagged points, publish
// anomaly events.
type DetectionUseCase struct {
	windows  domrepo.WindowSupplier
	store    domrepo.AnomalyStore
	pub      domrepo.AnomalyPublisher
	metrics  domrepo.Metrics
	ensemble *Ensemble
	log      *logger.Logger

	sensitivity float64 // default persist threshold on combined score
	farmWorkers int
}

func NewDetectionUseCase(
	windows domrepo.WindowSupplier,
	store domrepo.AnomalyStore,
	pub domrepo.AnomalyPublisher,
	metrics domrepo.Metrics,
	ensemble *Ensemble,
	log *logger.Logger,
	sensitivity float64,
) *DetectionUseCase {
	if sensitivity <= 0 {
		sensitivity = 0.8
	}
	return &DetectionUseCase{
		windows:     windows,
		store:       store,
		pub:         pub,
		metrics:     metrics,
		ensemble:    ensemble,
		log:         log,
		sensitivity: sensitivity,
		farmWorkers: defaultFarmWorkers,
	}
}

// DetectRoom scores every metric of one room over the last p.Days and
// persists points whose combined score exceeds p.Sensitivity. Metrics with no
// data are skipped; the call fails with ErrNoData only when the room has no
// data for any metric.
func (uc *DetectionUseCase) DetectRoom(ctx context.Context, p models.DetectRoomRequest) (*models.DetectRoomResponse, error) {
	if p.Days <= 0 {
		p.Days = 7
	}
	if p.Sensitivity <= 0 {
		p.Sensitivity = uc.sensitivity
	}

	start := time.Now()
	anomalies := make([]models.AnomalyRecord, 0)
	fetched := 0

	for _, metric := range models.AllMetrics() {
		window, err := uc.windows.FetchWindow(ctx, p.RoomID, metric, p.Days)
		if err != nil {
			if errors.Is(err, domrepo.ErrNoData) {
				continue
			}
			return nil, err
		}
		fetched++

		recs, err := uc.detectWindow(ctx, window, p.Days, p.Sensitivity)
		if err != nil {
			// one metric failing to fit must not sink the whole room pass
			uc.metrics.RecordError("detect_metric")
			uc.log.Warn("metric detection failed",
				logger.String("room_id", p.RoomID),
				logger.String("metric", string(metric)),
				logger.Error(err))
			continue
		}
		anomalies = append(anomalies, recs...)
	}

	if fetched == 0 {
		return nil, domrepo.ErrNoData
	}

	sort.Slice(anomalies, func(i, j int) bool {
		return anomalies[i].CombinedScore > anomalies[j].CombinedScore
	})

	uc.metrics.RecordDetection(p.RoomID, "room")
	uc.metrics.RecordLatency("detect_room", time.Since(start).Seconds())
	uc.log.Info("room detection complete",
		logger.String("room_id", p.RoomID),
		logger.Int("days", p.Days),
		logger.Int("anomalies", len(anomalies)),
		logger.Duration("took", time.Since(start)))

	return &models.DetectRoomResponse{
		RoomID:     p.RoomID,
		PeriodDays: p.Days,
		Anomalies:  anomalies,
		Count:      len(anomalies),
	}, nil
}

// detectWindow scores a window's own points and persists those above the
// sensitivity threshold.
func (uc *DetectionUseCase) detectWindow(ctx context.Context, window *models.SignalWindow, days int, sensitivity float64) ([]models.AnomalyRecord, error) {
	scores, set, err := uc.ensemble.Detect(ctx, window, window.Points, nil)
	if err != nil {
		return nil, err
	}

	var out []models.AnomalyRecord
	for _, score := range scores {
		if score.CombinedScore <= sensitivity {
			continue
		}
		rec := uc.buildRecord(window, score, set.Models, days)
		if err := uc.persist(ctx, &rec); err != nil {
			uc.metrics.RecordError("persist_anomaly")
			uc.log.Error("persist anomaly failed",
				logger.String("room_id", window.RoomID),
				logger.String("metric", string(window.Metric)),
				logger.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (uc *DetectionUseCase) buildRecord(window *models.SignalWindow, score models.EnsembleScore, fitted map[models.DetectorKind]detector.Model, days int) models.AnomalyRecord {
	expl := detector.Explain(score, fitted, days)
	now := time.Now().UTC()
	return models.AnomalyRecord{
		ID:            uuid.NewString(),
		RoomID:        window.RoomID,
		FarmID:        window.FarmID,
		Timestamp:     window.Points[score.PointIndex].Timestamp,
		MetricName:    window.Metric,
		Value:         score.Value,
		CombinedScore: score.CombinedScore,
		AnomalyType:   expl.AnomalyType,
		Severity:      score.Severity,
		Description:   expl.Summary,
		State:         models.StateDetected,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (uc *DetectionUseCase) persist(ctx context.Context, rec *models.AnomalyRecord) error {
	id, err := uc.store.Persist(ctx, rec)
	if err != nil {
		return err
	}
	rec.ID = id
	uc.metrics.RecordAnomaly(string(rec.Severity))

	// publish is best-effort: a broker outage never fails detection
	if uc.pub != nil {
		if err := uc.pub.Publish(ctx, rec); err != nil {
			uc.metrics.RecordError("publish_anomaly")
			uc.log.Warn("publish anomaly failed",
				logger.String("anomaly_id", rec.ID),
				logger.Error(err))
		}
	}
	return nil
}

// DetectFarm fans room detection out over the farm with a bounded worker
// pool and aggregates per-room and per-severity counts. Rooms with no data
// count as zero anomalies rather than failing the farm pass.
func (uc *DetectionUseCase) DetectFarm(ctx context.Context, p models.DetectFarmRequest) (*models.FarmAnomalySummary, error) {
	if p.Days <= 0 {
		p.Days = 7
	}

	rooms, err := uc.windows.Rooms(ctx, p.FarmID)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, domrepo.ErrNoData
	}

	start := time.Now()

	type roomResult struct {
		roomID    string
		anomalies []models.AnomalyRecord
		err       error
	}
	jobs := make(chan string)
	results := make(chan roomResult, len(rooms))

	workers := uc.farmWorkers
	if workers > len(rooms) {
		workers = len(rooms)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for roomID := range jobs {
				resp, err := uc.DetectRoom(ctx, models.DetectRoomRequest{
					RoomID:      roomID,
					Days:        p.Days,
					Sensitivity: uc.sensitivity,
				})
				if err != nil {
					results <- roomResult{roomID: roomID, err: err}
					continue
				}
				results <- roomResult{roomID: roomID, anomalies: resp.Anomalies}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, roomID := range rooms {
			select {
			case jobs <- roomID:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() { wg.Wait(); close(results) }()

	summary := &models.FarmAnomalySummary{
		FarmID:     p.FarmID,
		PeriodDays: p.Days,
		Anomalies:  make([]models.AnomalyRecord, 0),
		ByRoom:     make(map[string]int, len(rooms)),
		BySeverity: make(map[models.Severity]int),
	}
	for _, roomID := range rooms {
		summary.ByRoom[roomID] = 0
	}

	severityFilter := models.Severity(p.Severity)
	for res := range results {
		if res.err != nil {
			if errors.Is(res.err, domrepo.ErrNoData) {
				continue
			}
			uc.metrics.RecordError("detect_farm_room")
			uc.log.Warn("room detection failed during farm pass",
				logger.String("farm_id", p.FarmID),
				logger.String("room_id", res.roomID),
				logger.Error(res.err))
			continue
		}
		for _, rec := range res.anomalies {
			if severityFilter != "" && rec.Severity != severityFilter {
				continue
			}
			summary.Anomalies = append(summary.Anomalies, rec)
			summary.ByRoom[res.roomID]++
			summary.BySeverity[rec.Severity]++
		}
	}

	sort.Slice(summary.Anomalies, func(i, j int) bool {
		return summary.Anomalies[i].CombinedScore > summary.Anomalies[j].CombinedScore
	})
	summary.TotalAnomalies = len(summary.Anomalies)

	uc.metrics.RecordDetection(p.FarmID, "farm")
	uc.metrics.RecordLatency("detect_farm", time.Since(start).Seconds())
	uc.log.Info("farm detection complete",
		logger.String("farm_id", p.FarmID),
		logger.Int("rooms", len(rooms)),
		logger.Int("anomalies", summary.TotalAnomalies),
		logger.Duration("took", time.Since(start)))
	return summary, nil
}

// GetAnomaly looks a record up by ID.
func (uc *DetectionUseCase) GetAnomaly(ctx context.Context, id string) (*models.AnomalyRecord, error) {
	return uc.store.Find(ctx, id)
}
