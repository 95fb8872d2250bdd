package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/filebackup/pkg/storage"
)

// Config contains the information required to talk to an S3-compatible store.
type Config struct {
	Endpoint           string
	Region             string
	AccessKey          string
	SecretKey          string
	UseSSL             bool
	MultipartThreshold int64
}

// Client copies objects through the MinIO SDK. Objects above the threshold
// go through ComposeObject, which copies server-side in parts and only
// publishes the destination once every part is in place.
type Client struct {
	client    *minio.Client
	threshold int64
}

// New creates a MinIO-backed storage client.
func New(cfg Config) (*Client, error) {
	cl, err := minio.New(trimScheme(cfg.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	threshold := cfg.MultipartThreshold
	if threshold <= 0 {
		threshold = storage.DefaultMultipartThreshold
	}
	return &Client{client: cl, threshold: threshold}, nil
}

// Stat returns the metadata of bucket/key.
func (c *Client) Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	info, err := c.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, storage.NewObjectError("stat", bucket, key, classify(err))
	}
	return storage.ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         info.Size,
		ETag:         storage.NormalizeETag(info.ETag),
		ContentType:  info.ContentType,
		Headers: storage.ContentHeaders{
			ContentEncoding:    info.Metadata.Get("Content-Encoding"),
			CacheControl:       info.Metadata.Get("Cache-Control"),
			ContentDisposition: info.Metadata.Get("Content-Disposition"),
			ContentLanguage:    info.Metadata.Get("Content-Language"),
			Expires:            info.Expires,
		},
		LastModified: info.LastModified,
		Metadata:     map[string]string(info.UserMetadata),
	}, nil
}

// Copy performs a server-side copy.
func (c *Client) Copy(ctx context.Context, in storage.CopyInput) (storage.CopyResult, error) {
	if in.SourceBucket == "" || in.SourceKey == "" || in.DestBucket == "" || in.DestKey == "" {
		return storage.CopyResult{}, storage.NewObjectError("copy", in.DestBucket, in.DestKey, storage.ErrInvalidInput)
	}

	dst := minio.CopyDestOptions{
		Bucket:          in.DestBucket,
		Object:          in.DestKey,
		ReplaceMetadata: true,
		UserMetadata:    destMetadata(in),
	}

	src := minio.CopySrcOptions{
		Bucket:    in.SourceBucket,
		Object:    in.SourceKey,
		MatchETag: in.SourceETag,
	}

	var (
		info      minio.UploadInfo
		err       error
		multipart = in.Size > c.threshold
	)
	if multipart {
		info, err = c.client.ComposeObject(ctx, dst, src)
	} else {
		info, err = c.client.CopyObject(ctx, dst, src)
	}
	if err != nil {
		return storage.CopyResult{}, storage.NewObjectError("copy", in.DestBucket, in.DestKey, classify(err))
	}

	return storage.CopyResult{
		ETag:      storage.NormalizeETag(info.ETag),
		Size:      in.Size,
		Multipart: multipart,
	}, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return nil
}

func trimScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey":
		return storage.Classified(storage.ErrObjectNotFound, err)
	case "NoSuchBucket":
		return storage.Classified(storage.ErrBucketNotFound, err)
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return storage.Classified(storage.ErrAccessDenied, err)
	case "SlowDown", "SlowDownRead", "SlowDownWrite", "RequestTimeTooSkewed":
		return storage.Classified(storage.ErrThrottled, err)
	case "ServiceUnavailable", "InternalError", "XMinioServerNotInitialized":
		return storage.Classified(storage.ErrUnavailable, err)
	case "PreconditionFailed":
		return storage.Classified(storage.ErrPreconditionFailed, err)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return storage.Classified(storage.ErrObjectNotFound, err)
	case http.StatusForbidden:
		return storage.Classified(storage.ErrAccessDenied, err)
	case http.StatusPreconditionFailed:
		return storage.Classified(storage.ErrPreconditionFailed, err)
	case http.StatusTooManyRequests:
		return storage.Classified(storage.ErrThrottled, err)
	case http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusBadGateway:
		return storage.Classified(storage.ErrUnavailable, err)
	case 0:
		// Not an S3 error response: transport failure.
		return storage.Classified(storage.ErrUnavailable, err)
	}
	return err
}

// destMetadata merges user metadata with the standard headers minio sends
// unprefixed on a metadata-replacing copy.
func destMetadata(in storage.CopyInput) map[string]string {
	metadata := make(map[string]string, len(in.Metadata)+6)
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	set := func(name, value string) {
		if value != "" {
			metadata[name] = value
		}
	}
	set("Content-Type", in.ContentType)
	set("Content-Encoding", in.Headers.ContentEncoding)
	set("Cache-Control", in.Headers.CacheControl)
	set("Content-Disposition", in.Headers.ContentDisposition)
	set("Content-Language", in.Headers.ContentLanguage)
	if !in.Headers.Expires.IsZero() {
		metadata["Expires"] = in.Headers.Expires.UTC().Format(http.TimeFormat)
	}
	return metadata
}
