// Package kafka carries backup traffic over Kafka: a producer for outcome
// notifications and a consumer-group reader for bucket notifications.
package kafka

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

// ProducerConfig configures the notification writer.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Compression  kafkago.Compression
	RequiredAcks kafkago.RequiredAcks
	MaxAttempts  int
	WriteTimeout time.Duration
}

// Producer writes keyed records to a single topic. Writes are synchronous so
// a failed notification is reported to the caller.
type Producer struct {
	writer *kafkago.Writer
	now    func() time.Time
}

// NewProducer constructs a Producer. Records with the same key land on the
// same partition, which keeps notifications for one object in order.
func NewProducer(cfg ProducerConfig) *Producer {
	return &Producer{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafkago.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			RequiredAcks: cfg.RequiredAcks,
			Compression:  cfg.Compression,
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Topic returns the destination topic.
func (p *Producer) Topic() string {
	return p.writer.Topic
}

// Publish writes one record.
func (p *Producer) Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error {
	if err := p.writer.WriteMessages(ctx, p.record(key, value, headers)); err != nil {
		return fmt.Errorf("write to %s: %w", p.writer.Topic, err)
	}
	return nil
}

func (p *Producer) record(key, value []byte, headers map[string]string) kafkago.Message {
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)

	msg := kafkago.Message{Key: key, Value: value, Time: p.now()}
	for _, k := range names {
		msg.Headers = append(msg.Headers, kafkago.Header{Key: k, Value: []byte(headers[k])})
	}
	return msg
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// ParseCompression maps a codec name to its kafka-go value. Empty selects
// snappy; "none" disables compression.
func ParseCompression(name string) (kafkago.Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return kafkago.Snappy, nil
	case "none":
		return 0, nil
	case "gzip":
		return kafkago.Gzip, nil
	case "lz4":
		return kafkago.Lz4, nil
	case "zstd":
		return kafkago.Zstd, nil
	default:
		return 0, fmt.Errorf("unsupported kafka compression codec %q", name)
	}
}
