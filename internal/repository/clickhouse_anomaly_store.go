package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"FlockWatch/internal/domain/models"
	domrepo "FlockWatch/internal/domain/repository"
	pkgch "FlockWatch/pkg/clickhouse"
	applogger "FlockWatch/pkg/logger"
)

// CHAnomalyStore implements AnomalyStore on a ReplacingMergeTree keyed by
// record ID. Feedback is written as a new row version with a later
// updated_at; reads use FINAL so callers always see the latest version and
// dismissed records stay queryable forever.
type CHAnomalyStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHAnomalyStore(ch *pkgch.Client, table string) *CHAnomalyStore {
	if table == "" {
		table = "flockwatch.anomalies"
	}
	return &CHAnomalyStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHAnomalyStore) SetLogger(l *applogger.Logger) { s.l = l }

const anomalyColumns = "id, room_id, farm_id, ts, metric_name, value, combined_score, anomaly_type, severity, description, confirmation_state, feedback_notes, created_at, updated_at"

func (s *CHAnomalyStore) Persist(ctx context.Context, rec *models.AnomalyRecord) (string, error) {
	if err := s.insert(ctx, rec); err != nil {
		return "", fmt.Errorf("persist anomaly: %w", err)
	}
	return rec.ID, nil
}

func (s *CHAnomalyStore) UpdateFeedback(ctx context.Context, rec *models.AnomalyRecord) error {
	// new row version; ReplacingMergeTree(updated_at) keeps the latest
	if err := s.insert(ctx, rec); err != nil {
		return fmt.Errorf("update feedback: %w", err)
	}
	return nil
}

func (s *CHAnomalyStore) insert(ctx context.Context, rec *models.AnomalyRecord) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, anomalyColumns)
	_, err := s.db.ExecContext(ctx, q,
		rec.ID,
		rec.RoomID,
		rec.FarmID,
		rec.Timestamp,
		string(rec.MetricName),
		rec.Value,
		rec.CombinedScore,
		string(rec.AnomalyType),
		string(rec.Severity),
		rec.Description,
		string(rec.State),
		rec.FeedbackNotes,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil && s.l != nil {
		s.l.Error("clickhouse anomaly insert error",
			applogger.String("anomaly_id", rec.ID),
			applogger.String("room_id", rec.RoomID),
			applogger.Error(err),
		)
	}
	return err
}

func (s *CHAnomalyStore) Find(ctx context.Context, id string) (*models.AnomalyRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE id = ?", anomalyColumns, s.table)
	rec, err := scanAnomaly(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("find anomaly: %w", err)
	}
	return rec, nil
}

func (s *CHAnomalyStore) ListByFarm(ctx context.Context, farmID string, days int) ([]models.AnomalyRecord, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT %s FROM %s FINAL
        WHERE farm_id = ? AND created_at >= ?
        ORDER BY combined_score DESC
    `, anomalyColumns, s.table)
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.QueryContext(ctx, q, farmID, since)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse list_by_farm query error",
				applogger.String("farm_id", farmID),
				applogger.Int("days", days),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer rows.Close()

	out := make([]models.AnomalyRecord, 0, 64)
	for rows.Next() {
		rec, err := scanAnomaly(rows)
		if err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	if s.l != nil {
		s.l.Info("clickhouse list_by_farm ok",
			applogger.String("farm_id", farmID),
			applogger.Int("days", days),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnomaly(row rowScanner) (*models.AnomalyRecord, error) {
	var (
		rec                          models.AnomalyRecord
		metric, atype, sev, state    string
	)
	if err := row.Scan(
		&rec.ID,
		&rec.RoomID,
		&rec.FarmID,
		&rec.Timestamp,
		&metric,
		&rec.Value,
		&rec.CombinedScore,
		&atype,
		&sev,
		&rec.Description,
		&state,
		&rec.FeedbackNotes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.MetricName = models.MetricName(metric)
	rec.AnomalyType = models.AnomalyType(atype)
	rec.Severity = models.Severity(sev)
	rec.State = models.ConfirmationState(state)
	return &rec, nil
}
