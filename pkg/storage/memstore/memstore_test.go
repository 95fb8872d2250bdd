package memstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/filebackup/pkg/storage"
)

func TestStore_StatErrors(t *testing.T) {
	s := New()
	_, err := s.Stat(context.Background(), "nope", "a")
	assert.ErrorIs(t, err, storage.ErrBucketNotFound)

	s.CreateBucket("inbox")
	_, err = s.Stat(context.Background(), "inbox", "a")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	assert.True(t, storage.IsNotFound(err))
}

func TestStore_Copy(t *testing.T) {
	s := New()
	s.CreateBucket("backup")
	etag := s.Put("inbox", "a.txt", []byte("hello"), "text/plain")

	res, err := s.Copy(context.Background(), storage.CopyInput{
		SourceBucket: "inbox",
		SourceKey:    "a.txt",
		SourceETag:   `"` + etag + `"`,
		DestBucket:   "backup",
		DestKey:      "copy.txt",
		Metadata:     map[string]string{"owner": "ops"},
	})
	require.NoError(t, err)
	assert.Equal(t, etag, res.ETag)
	assert.False(t, res.Multipart)

	info, err := s.Stat(context.Background(), "backup", "copy.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "text/plain", info.ContentType)
	assert.Equal(t, "ops", info.MetadataValue("Owner"))
}

func TestStore_CopyPreconditions(t *testing.T) {
	s := New()
	s.Put("inbox", "a.txt", []byte("v1"), "")

	_, err := s.Copy(context.Background(), storage.CopyInput{
		SourceBucket: "inbox", SourceKey: "a.txt", SourceETag: "stale",
		DestBucket: "inbox", DestKey: "b.txt",
	})
	assert.ErrorIs(t, err, storage.ErrPreconditionFailed)

	_, err = s.Copy(context.Background(), storage.CopyInput{
		SourceBucket: "inbox", SourceKey: "a.txt",
		DestBucket: "missing", DestKey: "b.txt",
	})
	assert.ErrorIs(t, err, storage.ErrBucketNotFound)
}

func TestStore_MultipartETag(t *testing.T) {
	s := New()
	s.SetMultipartThreshold(4)
	s.Put("inbox", "big", []byte("0123456789"), "")

	res, err := s.Copy(context.Background(), storage.CopyInput{
		SourceBucket: "inbox", SourceKey: "big", DestBucket: "inbox", DestKey: "big.bak",
	})
	require.NoError(t, err)
	assert.True(t, res.Multipart)
	assert.True(t, strings.HasSuffix(res.ETag, "-1"))

	total, multipart := s.Copies()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, multipart)
}

func TestStore_FailOn(t *testing.T) {
	s := New()
	s.Put("inbox", "a.txt", []byte("x"), "")
	boom := errors.New("boom")
	s.FailOn("stat", "inbox", "a.txt", boom)

	_, err := s.Stat(context.Background(), "inbox", "a.txt")
	assert.ErrorIs(t, err, boom)

	var serr *storage.Error
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "stat", serr.Op)

	s.Delete("inbox", "a.txt")
	assert.Empty(t, s.Keys("inbox"))
}
