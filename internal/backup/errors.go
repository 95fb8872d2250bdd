package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/your-org/filebackup/pkg/storage"
)

// ErrMissingDestination is the configuration fault raised when no backup
// bucket is configured. It aborts the whole invocation.
var ErrMissingDestination = errors.New("backup: destination bucket is required")

// RecordError reports a record that cannot be processed as delivered.
type RecordError struct {
	Field  string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("invalid record: %s %s", e.Field, e.Reason)
}

// classify maps a storage failure to the reason reported on the outcome.
func classify(err error) FailureReason {
	var recErr *RecordError
	switch {
	case errors.As(err, &recErr), errors.Is(err, storage.ErrInvalidInput):
		return ReasonInvalidRecord
	case storage.IsNotFound(err):
		return ReasonNotFound
	case errors.Is(err, storage.ErrAccessDenied):
		return ReasonAccessDenied
	case errors.Is(err, storage.ErrThrottled):
		return ReasonThrottled
	case errors.Is(err, storage.ErrPreconditionFailed):
		return ReasonSourceChanged
	case errors.Is(err, storage.ErrUnavailable):
		return ReasonUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonTimeout
	default:
		return ReasonStorage
	}
}
