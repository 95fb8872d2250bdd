package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// HandlerFunc processes one message. A non-nil error asks for redelivery.
type HandlerFunc func(ctx context.Context, msg kafkago.Message) error

// ConsumerConfig configures a consumer-group reader.
type ConsumerConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	// MaxAttempts bounds how often a failing message is handed to the
	// handler before it is committed and logged as dropped.
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Consumer reads bucket notifications from a topic and commits each message
// once its handler succeeded or its attempts ran out.
type Consumer struct {
	reader *kafkago.Reader
	cfg    ConsumerConfig
	logger *zap.Logger
}

// NewConsumer constructs a Consumer.
func NewConsumer(cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		}),
		cfg:    cfg,
		logger: logger,
	}
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 1
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10e6
	}
	return cfg
}

// Run fetches messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle HandlerFunc) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		if err := c.deliver(ctx, msg, handle); err != nil {
			if ctx.Err() != nil {
				// Uncommitted: the group redelivers it after restart.
				return nil
			}
			c.logger.Error("message dropped after retries",
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Uint("attempts", c.cfg.MaxAttempts),
				zap.Error(err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit message: %w", err)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, msg kafkago.Message, handle HandlerFunc) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.cfg.InitialBackoff
	expo.MaxInterval = c.cfg.MaxBackoff

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if err := handle(ctx, msg); err != nil {
			c.logger.Warn("message handling failed",
				zap.Int64("offset", msg.Offset),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(c.cfg.MaxAttempts))
	return err
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
