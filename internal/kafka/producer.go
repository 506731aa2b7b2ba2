package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-storefront/internal/logger"
)

// Event is the envelope every domain event is published in.
type Event struct {
	Type       string      `json:"type"`
	EntityID   string      `json:"entity_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Data       interface{} `json:"data,omitempty"`
}

// Publisher is what services depend on; they publish after commit and
// only log failures.
type Publisher interface {
	Publish(ctx context.Context, topic string, ev Event) error
}

type Producer struct {
	Writer *kafka.Writer
	Logger *logger.Logger
}

// NewProducer returns a writer that routes each message by its own topic.
func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Logger: log}
}

func buildMessage(topic string, ev Event) (kafka.Message, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	return kafka.Message{
		Topic: topic,
		Key:   []byte(ev.EntityID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}, nil
}

func (p *Producer) Publish(ctx context.Context, topic string, ev Event) error {
	msg, err := buildMessage(topic, ev)
	if err != nil {
		return err
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Type, topic, err)
	}
	p.Logger.LogKafka("PUBLISH", topic, fmt.Sprintf("%s %s", ev.Type, ev.EntityID))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// Noop drops events. Used when Kafka is disabled.
type Noop struct{}

func (Noop) Publish(context.Context, string, Event) error { return nil }
