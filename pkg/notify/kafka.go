package notify

import (
	"context"
	"fmt"
)

// KafkaProducer is the publishing side of pkg/kafka.Producer.
type KafkaProducer interface {
	Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error
	Topic() string
}

// KafkaPublisher writes notifications to a Kafka topic. The subject and
// attributes become message headers.
type KafkaPublisher struct {
	producer KafkaProducer
}

// NewKafkaPublisher wraps a producer.
func NewKafkaPublisher(producer KafkaProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// Publish sends msg keyed by msg.Key.
func (p *KafkaPublisher) Publish(ctx context.Context, msg Message) error {
	headers := make(map[string]string, len(msg.Attributes)+1)
	for k, v := range msg.Attributes {
		headers[k] = v
	}
	if msg.Subject != "" {
		headers[SubjectAttribute] = msg.Subject
	}
	if err := p.producer.Publish(ctx, []byte(msg.Key), msg.Body, headers); err != nil {
		return fmt.Errorf("publish to kafka topic %s: %w", p.producer.Topic(), err)
	}
	return nil
}
