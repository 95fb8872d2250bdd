package backup

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/your-org/filebackup/pkg/storage"
)

var tracer = otel.Tracer("github.com/your-org/filebackup/internal/backup")

// StorageClient is the object store the replicator reads from and writes to.
type StorageClient interface {
	Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	Copy(ctx context.Context, in storage.CopyInput) (storage.CopyResult, error)
}

// SkipPolicy decides when an existing backup makes a copy unnecessary.
type SkipPolicy string

const (
	// SkipSameETag skips when the backup was made from the same source
	// content, recognised by ETag or by the recorded source ETag.
	SkipSameETag SkipPolicy = "etag"
	// SkipExisting skips whenever any object exists at the destination key.
	SkipExisting SkipPolicy = "exists"
	// AlwaysCopy never checks the destination; duplicates overwrite.
	AlwaysCopy SkipPolicy = "overwrite"
)

// ParseSkipPolicy validates a policy name; empty selects SkipSameETag.
func ParseSkipPolicy(name string) (SkipPolicy, error) {
	switch p := SkipPolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return SkipSameETag, nil
	case SkipSameETag, SkipExisting, AlwaysCopy:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported skip policy %q", name)
	}
}

// Replicator copies one object into the backup bucket.
type Replicator struct {
	store  StorageClient
	policy SkipPolicy
	prefix string
	logger *zap.Logger
}

// NewReplicator constructs a Replicator.
func NewReplicator(store StorageClient, policy SkipPolicy, keyPrefix string, logger *zap.Logger) *Replicator {
	if policy == "" {
		policy = SkipSameETag
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replicator{store: store, policy: policy, prefix: keyPrefix, logger: logger}
}

// Replicate copies src into destBucket under the same key (plus the
// configured prefix). src.Key must already be decoded.
//
// Expected failures come back as a StatusFailed outcome. The only error
// returned is ErrMissingDestination, which is a configuration fault.
func (r *Replicator) Replicate(ctx context.Context, src Location, destBucket string) (Outcome, error) {
	if destBucket == "" {
		return Outcome{}, ErrMissingDestination
	}
	dst := Location{Bucket: destBucket, Key: r.prefix + src.Key}

	ctx, span := tracer.Start(ctx, "backup.replicate")
	defer span.End()
	span.SetAttributes(
		attribute.String("backup.source", src.String()),
		attribute.String("backup.destination", dst.String()),
		attribute.String("backup.skip_policy", string(r.policy)),
	)

	out := r.replicate(ctx, src, dst)

	span.SetAttributes(attribute.String("backup.status", string(out.Status)))
	if out.Status == StatusFailed {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(out.Reason))
	}
	return out, nil
}

func (r *Replicator) replicate(ctx context.Context, src, dst Location) Outcome {
	if src.Bucket == "" || src.Key == "" {
		return failed(src, dst, ReasonInvalidRecord, &RecordError{Field: "source location", Reason: "is incomplete"})
	}

	source, err := r.store.Stat(ctx, src.Bucket, src.Key)
	if err != nil {
		return failed(src, dst, classify(err), fmt.Errorf("stat source: %w", err))
	}

	if r.policy != AlwaysCopy {
		existing, err := r.store.Stat(ctx, dst.Bucket, dst.Key)
		switch {
		case err == nil:
			if r.policy == SkipExisting || sameContent(source, existing) {
				r.logger.Debug("backup already present",
					zap.String("destination", dst.String()),
					zap.String("etag", existing.ETag))
				return Outcome{
					Status:      StatusSkipped,
					Source:      src,
					Destination: dst,
					SizeBytes:   existing.Size,
					ETag:        existing.ETag,
				}
			}
			r.logger.Debug("backup is stale, overwriting",
				zap.String("destination", dst.String()),
				zap.String("source_etag", source.ETag),
				zap.String("backup_etag", existing.ETag))
		case storage.IsNotFound(err):
		default:
			return failed(src, dst, classify(err), fmt.Errorf("stat destination: %w", err))
		}
	}

	res, err := r.store.Copy(ctx, storage.CopyInput{
		SourceBucket: src.Bucket,
		SourceKey:    src.Key,
		SourceETag:   source.ETag,
		Size:         source.Size,
		DestBucket:   dst.Bucket,
		DestKey:      dst.Key,
		ContentType:  source.ContentType,
		Headers:      source.Headers,
		Metadata:     backupMetadata(source),
	})
	if err != nil {
		return failed(src, dst, classify(err), fmt.Errorf("copy object: %w", err))
	}

	return Outcome{
		Status:      StatusCopied,
		Source:      src,
		Destination: dst,
		SizeBytes:   source.Size,
		ETag:        res.ETag,
		Multipart:   res.Multipart,
	}
}

// sameContent compares identities. A multipart copy has a different ETag
// from its source, so the source ETag recorded at copy time also counts.
func sameContent(source, backup storage.ObjectInfo) bool {
	want := storage.NormalizeETag(source.ETag)
	if want == "" {
		return false
	}
	if storage.NormalizeETag(backup.ETag) == want {
		return true
	}
	return storage.NormalizeETag(backup.MetadataValue(storage.SourceETagKey)) == want
}

func backupMetadata(source storage.ObjectInfo) map[string]string {
	metadata := make(map[string]string, len(source.Metadata)+1)
	for k, v := range source.Metadata {
		if strings.EqualFold(k, storage.SourceETagKey) {
			continue
		}
		metadata[k] = v
	}
	if source.ETag != "" {
		metadata[storage.SourceETagKey] = storage.NormalizeETag(source.ETag)
	}
	return metadata
}
