package backup

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// StreamHandler processes bucket notifications delivered through a Kafka
// topic, one notification document per message.
type StreamHandler struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewStreamHandler constructs a StreamHandler.
func NewStreamHandler(d *Dispatcher, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{dispatcher: d, logger: logger}
}

// HandleMessage dispatches one message. Undecodable payloads fail
// permanently; an incomplete batch fails with a retryable error and is
// replayed whole, relying on destination skips for records already copied.
func (h *StreamHandler) HandleMessage(ctx context.Context, msg kafkago.Message) error {
	batch, err := DecodeBatch(msg.Value)
	if err != nil {
		h.logger.Warn("discarding undecodable notification",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return backoff.Permanent(err)
	}

	resp, err := h.dispatcher.Handle(ctx, batch)
	if err != nil {
		return backoff.Permanent(err)
	}
	if !resp.OK() {
		return fmt.Errorf("%w: %d failed, %d unprocessed", ErrBatchIncomplete, resp.Failed, resp.Unprocessed)
	}
	return nil
}
