package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testConsumer(attempts uint) *Consumer {
	return &Consumer{
		cfg: ConsumerConfig{
			MaxAttempts:    attempts,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		}.withDefaults(),
		logger: zap.NewNop(),
	}
}

func TestConsumerConfig_Defaults(t *testing.T) {
	cfg := ConsumerConfig{}.withDefaults()
	assert.Equal(t, uint(5), cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 1, cfg.MinBytes)
}

func TestDeliver_RetriesUntilSuccess(t *testing.T) {
	c := testConsumer(5)
	calls := 0
	err := c.deliver(context.Background(), kafkago.Message{Offset: 7}, func(context.Context, kafkago.Message) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDeliver_GivesUp(t *testing.T) {
	c := testConsumer(3)
	calls := 0
	err := c.deliver(context.Background(), kafkago.Message{}, func(context.Context, kafkago.Message) error {
		calls++
		return errors.New("still failing")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDeliver_PermanentStopsImmediately(t *testing.T) {
	c := testConsumer(5)
	calls := 0
	err := c.deliver(context.Background(), kafkago.Message{}, func(context.Context, kafkago.Message) error {
		calls++
		return backoff.Permanent(errors.New("garbage"))
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
