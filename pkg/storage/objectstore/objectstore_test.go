package objectstore

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/filebackup/pkg/storage"
)

func TestNew(t *testing.T) {
	c, err := New(Config{Endpoint: "http://localhost:9000", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.Equal(t, storage.DefaultMultipartThreshold, c.threshold)
	assert.NoError(t, c.Close())
}

func TestTrimScheme(t *testing.T) {
	assert.Equal(t, "minio:9000", trimScheme("http://minio:9000"))
	assert.Equal(t, "s3.example.com", trimScheme("https://s3.example.com"))
	assert.Equal(t, "minio:9000", trimScheme("minio:9000"))
}

func TestDestMetadata(t *testing.T) {
	md := destMetadata(storage.CopyInput{
		ContentType: "text/plain",
		Headers: storage.ContentHeaders{
			ContentEncoding: "gzip",
			CacheControl:    "no-cache",
			Expires:         time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Metadata: map[string]string{storage.SourceETagKey: "abc"},
	})
	assert.Equal(t, map[string]string{
		storage.SourceETagKey: "abc",
		"Content-Type":        "text/plain",
		"Content-Encoding":    "gzip",
		"Cache-Control":       "no-cache",
		"Expires":             "Wed, 02 Jan 2030 03:04:05 GMT",
	}, md)
}

func TestCopy_RejectsIncompleteInput(t *testing.T) {
	c, err := New(Config{Endpoint: "localhost:9000"})
	require.NoError(t, err)

	_, err = c.Copy(context.Background(), storage.CopyInput{SourceBucket: "inbox", DestBucket: "backup", DestKey: "a"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, storage.ErrObjectNotFound},
		{"no such bucket", minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}, storage.ErrBucketNotFound},
		{"denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, storage.ErrAccessDenied},
		{"slow down", minio.ErrorResponse{Code: "SlowDown", StatusCode: http.StatusServiceUnavailable}, storage.ErrThrottled},
		{"precondition", minio.ErrorResponse{Code: "PreconditionFailed", StatusCode: http.StatusPreconditionFailed}, storage.ErrPreconditionFailed},
		{"bare 404", minio.ErrorResponse{StatusCode: http.StatusNotFound}, storage.ErrObjectNotFound},
		{"bare 502", minio.ErrorResponse{StatusCode: http.StatusBadGateway}, storage.ErrUnavailable},
		{"transport", errors.New("dial tcp: connection refused"), storage.ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tc.err), tc.want)
		})
	}

	assert.Equal(t, context.Canceled, classify(context.Canceled))
}
