package repository

import (
	"context"
	"errors"

	"FlockWatch/internal/domain/models"
)

// ErrNotFound is returned for lookups/feedback on unknown anomaly IDs.
var ErrNotFound = errors.New("anomaly record not found")

// AnomalyStore persists detected anomalies and human feedback.
// Records are append-or-update; dismissal is a state change, never a delete.
type AnomalyStore interface {
	Persist(ctx context.Context, rec *models.AnomalyRecord) (string, error)
	Find(ctx context.Context, id string) (*models.AnomalyRecord, error)
	UpdateFeedback(ctx context.Context, rec *models.AnomalyRecord) error
	ListByFarm(ctx context.Context, farmID string, days int) ([]models.AnomalyRecord, error)
}

// AnomalyPublisher pushes newly persisted records to downstream consumers
// (alert pipelines, live feeds). Best-effort: publish failures are logged,
// never surfaced to the detection caller.
type AnomalyPublisher interface {
	Publish(ctx context.Context, rec *models.AnomalyRecord) error
	Close() error
}
