package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"kycore/internal/platform/kafka/producer"
)

// DefaultTopic is the Kafka topic consent audit events are published to.
const DefaultTopic = "kycore.consent.audit"

// KafkaSink publishes audit events to Kafka for downstream consumers.
type KafkaSink struct {
	producer *producer.Producer
	topic    string
}

func NewKafkaSink(prod *producer.Producer, topic string) *KafkaSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaSink{producer: prod, topic: topic}
}

func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	msg := &producer.Message{
		Topic: s.topic,
		// Key by user so a user's events stay ordered within a partition.
		Key:   []byte(event.UserID),
		Value: payload,
		Headers: map[string]string{
			"action":      event.Action,
			"institution": event.Institution,
		},
	}
	return s.producer.Produce(ctx, msg)
}
