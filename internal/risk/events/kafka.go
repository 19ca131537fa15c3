// Package events publishes risk domain events to the message bus for the
// audit, alerting and notification consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Aidin1998/riskcore/internal/risk"
)

// Envelope is the wire format for published events.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// KafkaPublisher implements risk.EventPublisher on a kafka topic, partitioned
// by user id so per-user event ordering is preserved.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		Compression:  kafka.Snappy,
	}
	return &KafkaPublisher{
		writer: writer,
		logger: logger.Named("risk-events"),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event risk.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	envelope, err := json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Type:       event.EventType(),
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key()),
		Value: envelope,
	})
	if err != nil {
		p.logger.Error("failed to publish event",
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
		return err
	}

	p.logger.Debug("published risk event",
		zap.String("event_type", event.EventType()),
		zap.String("key", event.Key()),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards events; used when the message bus is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, risk.Event) error { return nil }
