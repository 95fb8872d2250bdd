// Package backup implements the replication handler: it decodes batches of
// object-created events, copies each object into the backup bucket, reports
// successes to the notification channel and summarises the batch.
package backup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/your-org/filebackup/pkg/storage"
)

// Config is the handler configuration, read once at startup and never
// changed afterwards.
type Config struct {
	DestinationBucket string
	KeyPrefix         string
	SkipPolicy        SkipPolicy
	NotifySkipped     bool
	// BatchTimeout bounds one Handle call; zero leaves it to the caller's
	// context.
	BatchTimeout time.Duration
	// Parallelism is the number of records processed concurrently.
	Parallelism int
}

// Params wires the dispatcher's collaborators.
type Params struct {
	Config Config
	Store  StorageClient
	// Notifications may be nil, which disables notifications.
	Notifications NotificationClient
	Logger        *zap.Logger
}

// Dispatcher processes event batches.
type Dispatcher struct {
	cfg        Config
	replicator *Replicator
	notifier   *Notifier
	logger     *zap.Logger
}

// NewDispatcher validates the configuration and constructs a Dispatcher.
func NewDispatcher(p Params) (*Dispatcher, error) {
	if p.Config.DestinationBucket == "" {
		return nil, ErrMissingDestination
	}
	if p.Store == nil {
		return nil, errors.New("backup: storage client is required")
	}
	if p.Config.Parallelism < 1 {
		p.Config.Parallelism = 1
	}
	if p.Config.SkipPolicy == "" {
		p.Config.SkipPolicy = SkipSameETag
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		cfg:        p.Config,
		replicator: NewReplicator(p.Store, p.Config.SkipPolicy, p.Config.KeyPrefix, logger),
		notifier:   NewNotifier(p.Notifications, p.Config.NotifySkipped, logger),
		logger:     logger,
	}, nil
}

// Handle processes batch and returns its aggregate. One record's failure
// never stops the others; the aggregate carries a failure status instead.
// The returned error is reserved for configuration faults.
func (d *Dispatcher) Handle(ctx context.Context, batch []ReplicationEvent) (AggregateResponse, error) {
	if d.cfg.DestinationBucket == "" {
		return AggregateResponse{}, ErrMissingDestination
	}

	started := time.Now()
	log := d.logger.With(zap.String("invocation_id", uuid.NewString()))

	ctx, span := tracer.Start(ctx, "backup.handle")
	defer span.End()
	span.SetAttributes(
		attribute.Int("backup.batch_size", len(batch)),
		attribute.String("backup.destination_bucket", d.cfg.DestinationBucket),
	)

	if d.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.BatchTimeout)
		defer cancel()
	}

	log.Info("received batch", zap.Int("records", len(batch)))

	var (
		outcomes []Outcome
		err      error
	)
	if d.cfg.Parallelism > 1 && len(batch) > 1 {
		outcomes, err = d.processParallel(ctx, log, batch)
	} else {
		outcomes, err = d.processSequential(ctx, log, batch)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "configuration fault")
		return AggregateResponse{}, err
	}

	resp := newAggregate(outcomes)
	span.SetAttributes(
		attribute.Int("backup.copied", resp.Copied),
		attribute.Int("backup.skipped", resp.Skipped),
		attribute.Int("backup.failed", resp.Failed),
		attribute.Int("backup.unprocessed", resp.Unprocessed),
	)

	fields := []zap.Field{
		zap.Int("processed", resp.Processed),
		zap.Int("copied", resp.Copied),
		zap.Int("skipped", resp.Skipped),
		zap.Int("failed", resp.Failed),
		zap.Int("unprocessed", resp.Unprocessed),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", time.Since(started)),
	}
	if resp.OK() {
		log.Info("batch complete", fields...)
	} else {
		span.SetStatus(codes.Error, "batch partially failed")
		log.Warn("batch completed with failures", fields...)
	}
	return resp, nil
}

func (d *Dispatcher) processSequential(ctx context.Context, log *zap.Logger, batch []ReplicationEvent) ([]Outcome, error) {
	outcomes := make([]Outcome, len(batch))
	for i, evt := range batch {
		if ctx.Err() != nil {
			for j := i; j < len(batch); j++ {
				outcomes[j] = d.notProcessed(ctx, batch[j])
			}
			log.Warn("batch budget exhausted", zap.Int("unprocessed", len(batch)-i))
			break
		}
		out, err := d.process(ctx, log, evt)
		if err != nil {
			return nil, err
		}
		outcomes[i] = out
	}
	return outcomes, nil
}

func (d *Dispatcher) processParallel(ctx context.Context, log *zap.Logger, batch []ReplicationEvent) ([]Outcome, error) {
	outcomes := make([]Outcome, len(batch))
	sem := make(chan struct{}, d.cfg.Parallelism)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		fatalErr error
	)
	for i, evt := range batch {
		acquired := false
		select {
		case sem <- struct{}{}:
			acquired = true
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			// Only release a slot this iteration took; running workers own the rest.
			if acquired {
				<-sem
			}
			outcomes[i] = d.notProcessed(ctx, evt)
			continue
		}

		wg.Add(1)
		go func(i int, evt ReplicationEvent) {
			defer wg.Done()
			defer func() { <-sem }()

			out, err := d.process(ctx, log, evt)
			if err != nil {
				errOnce.Do(func() { fatalErr = err })
				return
			}
			outcomes[i] = out
		}(i, evt)
	}
	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}
	return outcomes, nil
}

// process runs decode, replicate, notify for one record.
func (d *Dispatcher) process(ctx context.Context, log *zap.Logger, evt ReplicationEvent) (Outcome, error) {
	src, err := sourceLocation(evt)
	if err != nil {
		out := failed(src, d.destination(src), ReasonInvalidRecord, err)
		d.logOutcome(log, evt, out)
		return out, nil
	}

	log.Info("processing object",
		zap.String("source", src.String()),
		zap.Int64("reported_size_bytes", evt.ReportedSize))

	out, err := d.replicator.Replicate(ctx, src, d.cfg.DestinationBucket)
	if err != nil {
		return Outcome{}, err
	}
	d.logOutcome(log, evt, out)

	if out.Succeeded() {
		d.notifier.Notify(ctx, out)
	}
	return out, nil
}

func (d *Dispatcher) notProcessed(ctx context.Context, evt ReplicationEvent) Outcome {
	src := Location{Bucket: evt.Bucket, Key: evt.Key}
	if key, err := DecodeKey(evt.Key); err == nil {
		src.Key = key
	}
	return failed(src, d.destination(src), ReasonNotProcessed, context.Cause(ctx))
}

func (d *Dispatcher) destination(src Location) Location {
	return Location{Bucket: d.cfg.DestinationBucket, Key: d.cfg.KeyPrefix + src.Key}
}

func (d *Dispatcher) logOutcome(log *zap.Logger, evt ReplicationEvent, out Outcome) {
	fields := []zap.Field{
		zap.String("event", string(out.Status)),
		zap.String("source", out.Source.String()),
		zap.String("destination", out.Destination.String()),
		zap.Int64("size_bytes", out.SizeBytes),
		zap.String("event_name", evt.EventName),
		zap.String("sequencer", evt.Sequencer),
	}
	switch out.Status {
	case StatusCopied:
		log.Info("object copied", append(fields,
			zap.String("etag", out.ETag),
			zap.Bool("multipart", out.Multipart))...)
	case StatusSkipped:
		log.Info("skip_copy: object already exists in backup", append(fields, zap.String("etag", out.ETag))...)
	default:
		log.Error("record failed", append(fields,
			zap.String("reason", string(out.Reason)),
			zap.Bool("retryable", storage.IsRetryable(out.Err)),
			zap.Error(out.Err))...)
	}
}
