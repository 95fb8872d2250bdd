package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/your-org/filebackup/pkg/tracing"
)

const flushTimeout = 5 * time.Second

// ErrBatchIncomplete is returned to the event platform when at least one
// record was not backed up, so that the batch is redelivered.
var ErrBatchIncomplete = errors.New("backup: batch incomplete")

// Response is the envelope returned from a function invocation.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// HandleS3Event processes an S3 notification document.
func (d *Dispatcher) HandleS3Event(ctx context.Context, evt events.S3Event) (AggregateResponse, error) {
	return d.Handle(ctx, FromS3Event(evt))
}

// HandlePayload decodes and processes a raw notification payload.
func (d *Dispatcher) HandlePayload(ctx context.Context, payload []byte) (AggregateResponse, error) {
	batch, err := DecodeBatch(payload)
	if err != nil {
		return AggregateResponse{}, err
	}
	return d.Handle(ctx, batch)
}

// LambdaHandler adapts a Dispatcher to the function runtime.
type LambdaHandler struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// NewLambdaHandler constructs a LambdaHandler.
func NewLambdaHandler(d *Dispatcher, logger *zap.Logger) *LambdaHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LambdaHandler{dispatcher: d, logger: logger}
}

// Invoke is the function entrypoint. The response always carries the batch
// summary; the error is non-nil when the batch should be retried.
func (h *LambdaHandler) Invoke(ctx context.Context, evt events.S3Event) (Response, error) {
	defer h.flush(ctx)

	resp, err := h.dispatcher.HandleS3Event(ctx, evt)
	if err != nil {
		h.logger.Error("invocation aborted", zap.Error(err))
		return Response{}, err
	}

	body, err := json.Marshal(resp.Summary())
	if err != nil {
		return Response{}, fmt.Errorf("marshal summary: %w", err)
	}
	out := Response{StatusCode: resp.StatusCode, Body: string(body)}
	if !resp.OK() {
		return out, fmt.Errorf("%w: %d failed, %d unprocessed", ErrBatchIncomplete, resp.Failed, resp.Unprocessed)
	}
	return out, nil
}

func (h *LambdaHandler) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := tracing.Flush(ctx); err != nil {
		h.logger.Warn("trace flush failed", zap.Error(err))
	}
}
