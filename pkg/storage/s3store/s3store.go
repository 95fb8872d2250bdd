// Package s3store implements the replicator's storage client on the AWS SDK.
//
// Copies up to the multipart threshold use a single CopyObject call. Larger
// objects are copied with UploadPartCopy in bounded parallel parts; the
// destination only becomes visible when the upload is completed, and any part
// failure aborts the upload so no truncated object is left behind.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/your-org/filebackup/pkg/storage"
)

const (
	// maxSimpleCopySize is the CopyObject limit imposed by S3.
	maxSimpleCopySize int64 = 5 * 1024 * 1024 * 1024
	minPartSize       int64 = 5 * 1024 * 1024
	maxParts          int64 = 10000

	defaultPartSize    int64 = 64 * 1024 * 1024
	defaultConcurrency       = 5

	abortTimeout = 30 * time.Second
)

// API is the subset of the S3 client used by Store.
type API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPartCopy(ctx context.Context, params *s3.UploadPartCopyInput, optFns ...func(*s3.Options)) (*s3.UploadPartCopyOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

var _ API = (*s3.Client)(nil)

// Options tunes the copy paths.
type Options struct {
	MultipartThreshold int64
	PartSize           int64
	Concurrency        int
	UsePathStyle       bool
}

// Store copies objects between S3 buckets.
type Store struct {
	api         API
	threshold   int64
	partSize    int64
	concurrency int
}

// New wraps an S3 API implementation.
func New(api API, opts Options) *Store {
	threshold := opts.MultipartThreshold
	if threshold <= 0 {
		threshold = storage.DefaultMultipartThreshold
	}
	if threshold > maxSimpleCopySize {
		threshold = maxSimpleCopySize
	}
	partSize := opts.PartSize
	if partSize < minPartSize {
		partSize = defaultPartSize
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Store{api: api, threshold: threshold, partSize: partSize, concurrency: concurrency}
}

// NewFromConfig builds a Store from a loaded AWS configuration.
func NewFromConfig(cfg aws.Config, opts Options) *Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.UsePathStyle
	})
	return New(client, opts)
}

// Stat returns the metadata of bucket/key.
func (s *Store) Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return storage.ObjectInfo{}, storage.NewObjectError("stat", bucket, key, classify(err))
	}
	return storage.ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         storage.NormalizeETag(aws.ToString(out.ETag)),
		ContentType:  aws.ToString(out.ContentType),
		Headers: storage.ContentHeaders{
			ContentEncoding:    aws.ToString(out.ContentEncoding),
			CacheControl:       aws.ToString(out.CacheControl),
			ContentDisposition: aws.ToString(out.ContentDisposition),
			ContentLanguage:    aws.ToString(out.ContentLanguage),
			Expires:            aws.ToTime(out.Expires),
		},
		LastModified: aws.ToTime(out.LastModified),
		Metadata:     out.Metadata,
	}, nil
}

// Copy performs a server-side copy, switching to multipart above the
// configured threshold.
func (s *Store) Copy(ctx context.Context, in storage.CopyInput) (storage.CopyResult, error) {
	if in.SourceBucket == "" || in.SourceKey == "" || in.DestBucket == "" || in.DestKey == "" {
		return storage.CopyResult{}, storage.NewObjectError("copy", in.DestBucket, in.DestKey, storage.ErrInvalidInput)
	}
	if in.Size > s.threshold {
		return s.multipartCopy(ctx, in)
	}
	return s.simpleCopy(ctx, in)
}

func (s *Store) simpleCopy(ctx context.Context, in storage.CopyInput) (storage.CopyResult, error) {
	input := &s3.CopyObjectInput{
		Bucket:            aws.String(in.DestBucket),
		Key:               aws.String(in.DestKey),
		CopySource:        aws.String(copySource(in.SourceBucket, in.SourceKey)),
		Metadata:          in.Metadata,
		MetadataDirective: awstypes.MetadataDirectiveReplace,
	}
	if in.ContentType != "" {
		input.ContentType = aws.String(in.ContentType)
	}
	h := in.Headers
	input.ContentEncoding = optional(h.ContentEncoding)
	input.CacheControl = optional(h.CacheControl)
	input.ContentDisposition = optional(h.ContentDisposition)
	input.ContentLanguage = optional(h.ContentLanguage)
	input.Expires = optionalTime(h.Expires)
	if in.SourceETag != "" {
		input.CopySourceIfMatch = aws.String(quoteETag(in.SourceETag))
	}

	out, err := s.api.CopyObject(ctx, input)
	if err != nil {
		return storage.CopyResult{}, storage.NewObjectError("copy", in.DestBucket, in.DestKey, classify(err))
	}

	var etag string
	if out.CopyObjectResult != nil {
		etag = storage.NormalizeETag(aws.ToString(out.CopyObjectResult.ETag))
	}
	return storage.CopyResult{ETag: etag, Size: in.Size}, nil
}

func (s *Store) multipartCopy(ctx context.Context, in storage.CopyInput) (storage.CopyResult, error) {
	partSize := s.partSizeFor(in.Size)
	numParts := int((in.Size + partSize - 1) / partSize)

	create := &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(in.DestBucket),
		Key:      aws.String(in.DestKey),
		Metadata: in.Metadata,
	}
	if in.ContentType != "" {
		create.ContentType = aws.String(in.ContentType)
	}
	h := in.Headers
	create.ContentEncoding = optional(h.ContentEncoding)
	create.CacheControl = optional(h.CacheControl)
	create.ContentDisposition = optional(h.ContentDisposition)
	create.ContentLanguage = optional(h.ContentLanguage)
	create.Expires = optionalTime(h.Expires)
	created, err := s.api.CreateMultipartUpload(ctx, create)
	if err != nil {
		return storage.CopyResult{}, storage.NewObjectError("create multipart upload", in.DestBucket, in.DestKey, classify(err))
	}
	uploadID := aws.ToString(created.UploadId)

	parts, err := s.copyParts(ctx, in, uploadID, partSize, numParts)
	if err != nil {
		s.abort(ctx, in.DestBucket, in.DestKey, uploadID)
		return storage.CopyResult{}, err
	}

	out, err := s.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(in.DestBucket),
		Key:             aws.String(in.DestKey),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &awstypes.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		s.abort(ctx, in.DestBucket, in.DestKey, uploadID)
		return storage.CopyResult{}, storage.NewObjectError("complete multipart upload", in.DestBucket, in.DestKey, classify(err))
	}

	return storage.CopyResult{
		ETag:      storage.NormalizeETag(aws.ToString(out.ETag)),
		Size:      in.Size,
		Multipart: true,
	}, nil
}

func (s *Store) copyParts(ctx context.Context, in storage.CopyInput, uploadID string, partSize int64, numParts int) ([]awstypes.CompletedPart, error) {
	type partResult struct {
		number int32
		etag   string
		err    error
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan partResult, numParts)
	sem := make(chan struct{}, s.concurrency)
	source := copySource(in.SourceBucket, in.SourceKey)

	var wg sync.WaitGroup
	for i := 0; i < numParts; i++ {
		wg.Add(1)
		go func(number int32) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- partResult{number: number, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			offset := int64(number-1) * partSize
			end := offset + partSize - 1
			if end >= in.Size {
				end = in.Size - 1
			}

			input := &s3.UploadPartCopyInput{
				Bucket:          aws.String(in.DestBucket),
				Key:             aws.String(in.DestKey),
				CopySource:      aws.String(source),
				CopySourceRange: aws.String(fmt.Sprintf("bytes=%d-%d", offset, end)),
				UploadId:        aws.String(uploadID),
				PartNumber:      aws.Int32(number),
			}
			if in.SourceETag != "" {
				input.CopySourceIfMatch = aws.String(quoteETag(in.SourceETag))
			}

			out, err := s.api.UploadPartCopy(ctx, input)
			if err != nil {
				results <- partResult{number: number, err: err}
				return
			}
			var etag string
			if out.CopyPartResult != nil {
				etag = aws.ToString(out.CopyPartResult.ETag)
			}
			results <- partResult{number: number, etag: etag}
		}(int32(i + 1))
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	parts := make([]awstypes.CompletedPart, numParts)
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = storage.NewObjectError(fmt.Sprintf("copy part %d", res.number), in.DestBucket, in.DestKey, classify(res.err))
				cancel()
			}
			continue
		}
		parts[res.number-1] = awstypes.CompletedPart{
			ETag:       aws.String(res.etag),
			PartNumber: aws.Int32(res.number),
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return parts, nil
}

// abort runs detached from the request context so cleanup still happens
// after a deadline or cancellation.
func (s *Store) abort(ctx context.Context, bucket, key, uploadID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	_, _ = s.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
}

func (s *Store) partSizeFor(size int64) int64 {
	partSize := s.partSize
	if minimum := (size + maxParts - 1) / maxParts; partSize < minimum {
		partSize = minimum
	}
	return partSize
}

// copySource URL-encodes each key segment; S3 decodes CopySource before use.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = strings.ReplaceAll(url.PathEscape(seg), "+", "%2B")
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return aws.String(v)
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return aws.Time(t)
}

func quoteETag(etag string) string {
	return `"` + storage.NormalizeETag(etag) + `"`
}

func classify(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return storage.Classified(storage.ErrUnavailable, err)
	}

	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return storage.Classified(storage.ErrObjectNotFound, err)
	case "NoSuchBucket":
		return storage.Classified(storage.ErrBucketNotFound, err)
	case "AccessDenied", "Forbidden", "AllAccessDisabled", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return storage.Classified(storage.ErrAccessDenied, err)
	case "SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequests":
		return storage.Classified(storage.ErrThrottled, err)
	case "ServiceUnavailable", "InternalError", "RequestTimeout":
		return storage.Classified(storage.ErrUnavailable, err)
	case "PreconditionFailed":
		return storage.Classified(storage.ErrPreconditionFailed, err)
	case "InvalidArgument", "InvalidRequest", "KeyTooLongError":
		return storage.Classified(storage.ErrInvalidInput, err)
	}
	return err
}
