// Package memstore is an in-memory storage client. It backs the replicator in
// tests and in local dry runs of the CLI.
package memstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/your-org/filebackup/pkg/storage"
)

type object struct {
	data        []byte
	etag        string
	contentType string
	headers     storage.ContentHeaders
	metadata    map[string]string
	modified    time.Time
}

// Store keeps objects in memory, keyed by bucket then key.
type Store struct {
	mu        sync.Mutex
	buckets   map[string]map[string]object
	failures  map[string]error
	threshold int64

	copies          int
	multipartCopies int
}

// New returns an empty store. Buckets are created on first write or with
// CreateBucket.
func New() *Store {
	return &Store{
		buckets:   map[string]map[string]object{},
		failures:  map[string]error{},
		threshold: storage.DefaultMultipartThreshold,
	}
}

// SetMultipartThreshold changes the size above which copies are counted as
// multipart.
func (s *Store) SetMultipartThreshold(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = n
}

// CreateBucket registers an empty bucket.
func (s *Store) CreateBucket(bucket string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = map[string]object{}
	}
}

// Put stores data under bucket/key and returns its ETag.
func (s *Store) Put(bucket, key string, data []byte, contentType string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := md5.Sum(data)
	etag := hex.EncodeToString(sum[:])
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = map[string]object{}
	}
	s.buckets[bucket][key] = object{
		data:        append([]byte(nil), data...),
		etag:        etag,
		contentType: contentType,
		metadata:    map[string]string{},
		modified:    time.Now().UTC(),
	}
	return etag
}

// SetHeaders replaces the content headers of an existing object.
func (s *Store) SetHeaders(bucket, key string, h storage.ContentHeaders) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj, ok := s.buckets[bucket][key]; ok {
		obj.headers = h
		s.buckets[bucket][key] = obj
	}
}

// Delete removes bucket/key if present.
func (s *Store) Delete(bucket, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets[bucket], key)
}

// FailOn makes every operation op ("stat" or "copy") touching bucket/key
// return err. For copies the destination is matched.
func (s *Store) FailOn(op, bucket, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[failureKey(op, bucket, key)] = err
}

// Keys lists the keys stored in bucket, sorted.
func (s *Store) Keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.buckets[bucket]))
	for k := range s.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Copies reports how many copies were performed and how many of them took
// the multipart path.
func (s *Store) Copies() (total, multipart int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copies, s.multipartCopies
}

// Stat returns the metadata of bucket/key.
func (s *Store) Stat(ctx context.Context, bucket, key string) (storage.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return storage.ObjectInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failures[failureKey("stat", bucket, key)]; ok {
		return storage.ObjectInfo{}, storage.NewObjectError("stat", bucket, key, err)
	}
	objects, ok := s.buckets[bucket]
	if !ok {
		return storage.ObjectInfo{}, storage.NewObjectError("stat", bucket, key, storage.ErrBucketNotFound)
	}
	obj, ok := objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.NewObjectError("stat", bucket, key, storage.ErrObjectNotFound)
	}

	metadata := make(map[string]string, len(obj.metadata))
	for k, v := range obj.metadata {
		metadata[k] = v
	}
	return storage.ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         obj.etag,
		ContentType:  obj.contentType,
		Headers:      obj.headers,
		LastModified: obj.modified,
		Metadata:     metadata,
	}, nil
}

// Copy duplicates the source object under the destination key. Multipart
// copies get an S3-style "<hash>-<parts>" ETag.
func (s *Store) Copy(ctx context.Context, in storage.CopyInput) (storage.CopyResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.CopyResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failures[failureKey("copy", in.DestBucket, in.DestKey)]; ok {
		return storage.CopyResult{}, storage.NewObjectError("copy", in.DestBucket, in.DestKey, err)
	}
	src, ok := s.buckets[in.SourceBucket][in.SourceKey]
	if !ok {
		return storage.CopyResult{}, storage.NewObjectError("copy", in.SourceBucket, in.SourceKey, storage.ErrObjectNotFound)
	}
	if in.SourceETag != "" && storage.NormalizeETag(in.SourceETag) != src.etag {
		return storage.CopyResult{}, storage.NewObjectError("copy", in.SourceBucket, in.SourceKey, storage.ErrPreconditionFailed)
	}
	dst, ok := s.buckets[in.DestBucket]
	if !ok {
		return storage.CopyResult{}, storage.NewObjectError("copy", in.DestBucket, in.DestKey, storage.ErrBucketNotFound)
	}

	size := int64(len(src.data))
	multipart := size > s.threshold
	etag := src.etag
	if multipart {
		etag = fmt.Sprintf("%s-%d", src.etag[:16], 1+size/(64*1024*1024))
	}

	metadata := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = src.contentType
	}
	dst[in.DestKey] = object{
		data:        append([]byte(nil), src.data...),
		etag:        etag,
		contentType: contentType,
		headers:     in.Headers,
		metadata:    metadata,
		modified:    time.Now().UTC(),
	}

	s.copies++
	if multipart {
		s.multipartCopies++
	}
	return storage.CopyResult{ETag: etag, Size: size, Multipart: multipart}, nil
}

func failureKey(op, bucket, key string) string {
	return op + "\x00" + bucket + "\x00" + key
}
