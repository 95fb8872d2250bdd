package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors for storage failures. Client implementations wrap provider
// errors so callers can classify them with errors.Is.
var (
	ErrObjectNotFound     = errors.New("storage: object not found")
	ErrBucketNotFound     = errors.New("storage: bucket not found")
	ErrAccessDenied       = errors.New("storage: access denied")
	ErrThrottled          = errors.New("storage: request throttled")
	ErrUnavailable        = errors.New("storage: service unavailable")
	ErrPreconditionFailed = errors.New("storage: precondition failed")
	ErrInvalidInput       = errors.New("storage: invalid input")
)

// Error records the operation and object a storage failure happened on.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Bucket != "" && e.Key != "":
		return fmt.Sprintf("%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewObjectError wraps err with operation and object context.
func NewObjectError(op, bucket, key string, err error) *Error {
	return &Error{Op: op, Bucket: bucket, Key: key, Err: err}
}

// Classified joins a sentinel with the provider error that caused it, keeping
// both reachable through errors.Is/As.
func Classified(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// IsNotFound reports whether err means the object or its bucket is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrBucketNotFound)
}

// IsRetryable reports whether err is likely to clear on redelivery.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrThrottled) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrPreconditionFailed)
}
