package events

import (
	"context"
	"encoding/json"
	"fmt"

	"cradle/internal/platform/kafka"
)

// KafkaPublisher writes events as JSON records keyed by Event.Key.
type KafkaPublisher struct {
	producer *kafka.Producer
}

func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.producer.Produce(ctx, event.Key(), body,
		kafka.Header{Key: "event-type", Value: string(event.Type)},
		kafka.Header{Key: "kind", Value: string(event.Kind)},
	)
}
