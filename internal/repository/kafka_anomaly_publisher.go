package repository

import (
	"context"

	"FlockWatch/internal/domain/models"
	domrepo "FlockWatch/internal/domain/repository"
	pkgkafka "FlockWatch/pkg/kafka"
)

// KafkaAnomalyPublisher implements AnomalyPublisher for Kafka. Events are
// keyed by room so per-room ordering survives partitioning.
type KafkaAnomalyPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaAnomalyPublisher creates a Kafka anomaly publisher.
func NewKafkaAnomalyPublisher(producer *pkgkafka.Producer, topic string) domrepo.AnomalyPublisher {
	return &KafkaAnomalyPublisher{producer: producer, topic: topic}
}

func (p *KafkaAnomalyPublisher) Publish(ctx context.Context, rec *models.AnomalyRecord) error {
	return p.producer.Publish(ctx, p.topic, []byte(rec.RoomID), rec)
}

func (p *KafkaAnomalyPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
