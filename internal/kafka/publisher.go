package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/skills-gamification/internal/config"
	"github.com/skills-gamification/internal/domain"
)

// Publisher emits gamification events to Kafka, keyed by user so one
// user's events stay ordered within a partition.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewPublisher connects a synchronous producer to the events topic
func NewPublisher(cfg *config.KafkaConfig, logger *slog.Logger) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = cfg.RetryAttempts
	saramaConfig.Producer.Retry.Backoff = cfg.RetryDelay
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating event producer: %w", err)
	}
	return NewPublisherWithProducer(producer, cfg.EventsTopic, logger), nil
}

// NewPublisherWithProducer wraps an existing producer
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

// PublishEvents sends events in one producer batch
func (p *Publisher) PublishEvents(_ context.Context, events []domain.GamificationEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encoding %s event: %w", e.Type, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic:     p.topic,
			Key:       sarama.StringEncoder(e.UserID),
			Value:     sarama.ByteEncoder(data),
			Timestamp: e.OccurredAt,
			Headers: []sarama.RecordHeader{
				{Key: []byte("event_type"), Value: []byte(e.Type)},
			},
		})
	}

	start := time.Now()
	if err := p.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("publishing events: %w", err)
	}
	p.logger.Debug("published events", "count", len(msgs), "topic", p.topic, "duration", time.Since(start))
	return nil
}

// Close flushes and closes the producer
func (p *Publisher) Close() error {
	return p.producer.Close()
}
