package usecase

import (
	"context"
	"time"

	"FlockWatch/internal/domain/models"
	domrepo "FlockWatch/internal/domain/repository"
	"FlockWatch/pkg/logger"
)

// FeedbackUseCase records human confirm/dismiss decisions on anomaly records.
// Feedback is labeled ground truth for later offline calibration; it never
// retrains detectors in-process.
type FeedbackUseCase struct {
	store   domrepo.AnomalyStore
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewFeedbackUseCase(store domrepo.AnomalyStore, metrics domrepo.Metrics, log *logger.Logger) *FeedbackUseCase {
	return &FeedbackUseCase{store: store, metrics: metrics, log: log}
}

// RecordFeedback transitions the record to confirmed (isReal) or dismissed.
// Re-labeling an already resolved record is allowed and idempotent; every
// transition is logged with its timestamp for audit. Unknown IDs fail with
// repository.ErrNotFound.
func (uc *FeedbackUseCase) RecordFeedback(ctx context.Context, p models.FeedbackRequest) (*models.AnomalyRecord, error) {
	rec, err := uc.store.Find(ctx, p.AnomalyID)
	if err != nil {
		return nil, err
	}

	prev := rec.State
	now := time.Now().UTC()
	rec.ApplyFeedback(*p.IsReal, p.Notes, now)

	if err := uc.store.UpdateFeedback(ctx, rec); err != nil {
		uc.metrics.RecordError("record_feedback")
		return nil, err
	}

	uc.log.Info("anomaly feedback recorded",
		logger.String("anomaly_id", rec.ID),
		logger.String("from", string(prev)),
		logger.String("to", string(rec.State)),
		logger.Any("at", now))
	return rec, nil
}
