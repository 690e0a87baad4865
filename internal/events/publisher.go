package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stride-io/stride/pkg/protocol"
)

// OutcomeEvent is the record published for each resolved session.
type OutcomeEvent struct {
	SessionID  string                   `json:"session_id"`
	OrderID    string                   `json:"order_id,omitempty"`
	Outcome    protocol.DecisionOutcome `json:"outcome"`
	ResolvedAt time.Time                `json:"resolved_at"`
}

// Publisher sends outcome events to downstream consumers (BI, store ops).
// Publishing is advisory: a failed publish never blocks or alters a decision.
type Publisher interface {
	PublishOutcome(ctx context.Context, event OutcomeEvent) error
	Close() error
}

// KafkaPublisher implements Publisher over a Kafka topic, keyed by session
// so replays for the same session land in one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *KafkaPublisher) PublishOutcome(ctx context.Context, event OutcomeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal outcome: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: publish outcome: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
