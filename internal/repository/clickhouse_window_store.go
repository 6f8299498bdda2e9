package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"FlockWatch/internal/domain/models"
	domrepo "FlockWatch/internal/domain/repository"
	pkgch "FlockWatch/pkg/clickhouse"
	applogger "FlockWatch/pkg/logger"
)

// CHWindowStore implements WindowSupplier backed by ClickHouse.
type CHWindowStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHWindowStore(ch *pkgch.Client, table string) *CHWindowStore {
	if table == "" {
		table = "flockwatch.sensor_metrics"
	}
	return &CHWindowStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHWindowStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHWindowStore) FetchWindow(ctx context.Context, roomID string, metric models.MetricName, days int) (*models.SignalWindow, error) {
	start := time.Now()
	const qtpl = `
        SELECT ts, value, farm_id
        FROM %s
        WHERE room_id = ? AND metric_name = ? AND ts >= ?
        ORDER BY ts ASC
    `
	q := fmt.Sprintf(qtpl, s.table)
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.QueryContext(ctx, q, roomID, string(metric), since)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse fetch_window query error",
				applogger.String("room_id", roomID),
				applogger.String("metric", string(metric)),
				applogger.Int("days", days),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("fetch window: %w", err)
	}
	defer rows.Close()

	var (
		points []models.MetricPoint
		farmID string
	)
	for rows.Next() {
		var p models.MetricPoint
		if err := rows.Scan(&p.Timestamp, &p.Value, &farmID); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse fetch_window scan error",
					applogger.String("room_id", roomID),
					applogger.String("metric", string(metric)),
					applogger.Error(err),
				)
			}
			return nil, fmt.Errorf("scan metric point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(points) == 0 {
		return nil, domrepo.ErrNoData
	}

	// duplicate timestamps can survive async inserts; keep the last reading
	points = dedupePoints(points)

	window := &models.SignalWindow{
		RoomID:  roomID,
		FarmID:  farmID,
		Metric:  metric,
		Points:  points,
		Days:    days,
		Cadence: inferCadence(points),
	}
	if err := window.Validate(); err != nil {
		return nil, fmt.Errorf("fetch window: %w", err)
	}

	if s.l != nil {
		s.l.Info("clickhouse fetch_window ok",
			applogger.String("room_id", roomID),
			applogger.String("metric", string(metric)),
			applogger.Int("days", days),
			applogger.Int("rows", len(points)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return window, nil
}

func (s *CHWindowStore) Rooms(ctx context.Context, farmID string) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT room_id FROM %s WHERE farm_id = ? ORDER BY room_id", s.table)
	rows, err := s.db.QueryContext(ctx, q, farmID)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse rooms query error",
				applogger.String("farm_id", farmID),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan room id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func dedupePoints(points []models.MetricPoint) []models.MetricPoint {
	out := points[:0]
	for _, p := range points {
		if len(out) > 0 && out[len(out)-1].Timestamp.Equal(p.Timestamp) {
			out[len(out)-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// inferCadence estimates the sampling interval as the median gap between
// consecutive points. Zero when the window is too small to tell.
func inferCadence(points []models.MetricPoint) time.Duration {
	if len(points) < 3 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		gaps = append(gaps, points[i].Timestamp.Sub(points[i-1].Timestamp))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}
