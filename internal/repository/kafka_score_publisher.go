package repository

import (
	"context"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

// Producer is the subset of *pkgkafka.Producer used for score events.
type Producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaScorePublisher emits scores as JSON keyed by entity so one entity's
// events stay ordered within a partition.
type KafkaScorePublisher struct {
	producer    Producer
	scoreTopic  string
	healthTopic string
}

var _ domrepo.ScorePublisher = (*KafkaScorePublisher)(nil)

func NewKafkaScorePublisher(p Producer, scoreTopic, healthTopic string) *KafkaScorePublisher {
	return &KafkaScorePublisher{producer: p, scoreTopic: scoreTopic, healthTopic: healthTopic}
}

func (p *KafkaScorePublisher) PublishScore(ctx context.Context, s models.CompositeScore) error {
	return p.producer.Publish(ctx, p.scoreTopic, []byte(s.EntityID), s)
}

func (p *KafkaScorePublisher) PublishHealth(ctx context.Context, s models.HealthScore) error {
	return p.producer.Publish(ctx, p.healthTopic, []byte(s.EntityID), s)
}

func (p *KafkaScorePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishScore(context.Context, models.CompositeScore) error { return nil }
func (NopPublisher) PublishHealth(context.Context, models.HealthScore) error { return nil }
func (NopPublisher) Close() error { return nil }
