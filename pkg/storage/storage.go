// Package storage holds the types shared by the object store clients that
// back the replicator.
package storage

import (
	"strings"
	"time"
)

// SourceETagKey is the user metadata key recording the ETag of the object a
// backup was copied from. Multipart copies get a fresh ETag at the
// destination, so this is what identity checks compare against.
const SourceETagKey = "backup-source-etag"

// DefaultMultipartThreshold is the object size above which copies switch to
// the multipart path.
const DefaultMultipartThreshold int64 = 100 * 1024 * 1024

// ContentHeaders are the standard headers a copy carries over from the
// source alongside its content type.
type ContentHeaders struct {
	ContentEncoding    string
	CacheControl       string
	ContentDisposition string
	ContentLanguage    string
	// Expires is zero when the source has no Expires header.
	Expires time.Time
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	Headers      ContentHeaders
	LastModified time.Time
	Metadata     map[string]string
}

// MetadataValue looks up a user metadata entry case-insensitively. Providers
// disagree on header canonicalisation.
func (o ObjectInfo) MetadataValue(key string) string {
	for k, v := range o.Metadata {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// CopyInput describes one server-side copy.
type CopyInput struct {
	SourceBucket string
	SourceKey    string
	// SourceETag, when set, makes the copy conditional on the source still
	// having this ETag.
	SourceETag string
	// Size is the source size from a prior Stat. Clients use it to pick the
	// simple or multipart path.
	Size        int64
	DestBucket  string
	DestKey     string
	ContentType string
	Headers     ContentHeaders
	Metadata    map[string]string
}

// CopyResult reports what a copy wrote.
type CopyResult struct {
	ETag      string
	Size      int64
	Multipart bool
}

// NormalizeETag strips the quotes S3 puts around ETags.
func NormalizeETag(etag string) string {
	return strings.Trim(strings.TrimSpace(etag), `"`)
}

// Path renders bucket and key as an s3:// URL.
func Path(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
