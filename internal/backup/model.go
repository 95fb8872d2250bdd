package backup

import (
	"net/http"
	"time"

	"github.com/your-org/filebackup/pkg/storage"
)

// Status classifies the result of replicating one object.
type Status string

const (
	StatusCopied  Status = "copied"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// FailureReason explains a failed outcome.
type FailureReason string

const (
	ReasonInvalidRecord FailureReason = "invalid_record"
	ReasonNotFound      FailureReason = "not_found"
	ReasonAccessDenied  FailureReason = "access_denied"
	ReasonThrottled     FailureReason = "throttled"
	ReasonUnavailable   FailureReason = "unavailable"
	ReasonSourceChanged FailureReason = "source_changed"
	ReasonTimeout       FailureReason = "timeout"
	ReasonStorage       FailureReason = "storage_error"
	// ReasonNotProcessed marks records the batch ran out of time before
	// starting.
	ReasonNotProcessed FailureReason = "not_processed"
)

// ReplicationEvent is one inbound object-created record. Key is the raw key
// from the notification and may be percent-encoded.
type ReplicationEvent struct {
	Bucket string
	Key    string
	// ReportedSize is the size carried by the notification; zero when
	// absent. It may be stale, the replicator trusts the source Stat.
	ReportedSize int64
	EventName    string
	EventTime    time.Time
	Sequencer    string
}

// Location identifies an object.
type Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (l Location) String() string {
	return storage.Path(l.Bucket, l.Key)
}

// Outcome is the result of replicating one event.
type Outcome struct {
	Status      Status
	Source      Location
	Destination Location
	SizeBytes   int64
	ETag        string
	Multipart   bool
	// Reason and Err are set only for StatusFailed.
	Reason FailureReason
	Err    error
}

// Succeeded reports whether the object is safely present in the backup.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusCopied || o.Status == StatusSkipped
}

func failed(src, dst Location, reason FailureReason, err error) Outcome {
	return Outcome{Status: StatusFailed, Source: src, Destination: dst, Reason: reason, Err: err}
}

// AggregateResponse summarises one batch. Processed counts records that were
// attempted; Unprocessed counts records the batch never started.
type AggregateResponse struct {
	StatusCode  int
	Processed   int
	Copied      int
	Skipped     int
	Failed      int
	Unprocessed int
	Outcomes    []Outcome
}

// Summary is the JSON body returned to the event-delivery platform.
type Summary struct {
	Message     string `json:"message"`
	Processed   int    `json:"processed"`
	Copied      int    `json:"copied"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	Unprocessed int    `json:"unprocessed"`
}

func newAggregate(outcomes []Outcome) AggregateResponse {
	resp := AggregateResponse{Outcomes: outcomes}
	for _, o := range outcomes {
		switch {
		case o.Status == StatusCopied:
			resp.Copied++
		case o.Status == StatusSkipped:
			resp.Skipped++
		case o.Reason == ReasonNotProcessed:
			resp.Unprocessed++
			continue
		default:
			resp.Failed++
		}
		resp.Processed++
	}

	resp.StatusCode = http.StatusOK
	if resp.Failed > 0 || resp.Unprocessed > 0 {
		resp.StatusCode = http.StatusInternalServerError
	}
	return resp
}

// OK reports whether every record was backed up.
func (r AggregateResponse) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Summary renders the response body.
func (r AggregateResponse) Summary() Summary {
	msg := "Backup processing complete"
	if !r.OK() {
		msg = "Backup processing completed with failures"
	}
	return Summary{
		Message:     msg,
		Processed:   r.Processed,
		Copied:      r.Copied,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
		Unprocessed: r.Unprocessed,
	}
}
