package repository

import (
	"context"
	"errors"

	"FlockWatch/internal/domain/models"
	domrepo "FlockWatch/internal/domain/repository"
)

// FanoutPublisher forwards each record to every underlying publisher
// (Kafka topic, live WebSocket feed). All targets are attempted even when an
// earlier one fails; errors are joined.
type FanoutPublisher struct {
	targets []domrepo.AnomalyPublisher
}

func NewFanoutPublisher(targets ...domrepo.AnomalyPublisher) *FanoutPublisher {
	return &FanoutPublisher{targets: targets}
}

func (p *FanoutPublisher) Publish(ctx context.Context, rec *models.AnomalyRecord) error {
	var errs []error
	for _, t := range p.targets {
		if err := t.Publish(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *FanoutPublisher) Close() error {
	var errs []error
	for _, t := range p.targets {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
