package backup

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// DecodeBatch parses an S3 event notification document. AWS Lambda
// triggers, MinIO webhook targets and MinIO Kafka targets all deliver this
// shape. A document without Records (such as s3:TestEvent) is an empty batch.
func DecodeBatch(payload []byte) ([]ReplicationEvent, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return nil, fmt.Errorf("decode event batch: empty payload")
	}
	var evt events.S3Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode event batch: %w", err)
	}
	return FromS3Event(evt), nil
}

// FromS3Event converts notification records to replication events, keeping
// delivery order.
func FromS3Event(evt events.S3Event) []ReplicationEvent {
	batch := make([]ReplicationEvent, 0, len(evt.Records))
	for _, rec := range evt.Records {
		batch = append(batch, ReplicationEvent{
			Bucket:       rec.S3.Bucket.Name,
			Key:          rec.S3.Object.Key,
			ReportedSize: rec.S3.Object.Size,
			EventName:    rec.EventName,
			EventTime:    rec.EventTime,
			Sequencer:    rec.S3.Object.Sequencer,
		})
	}
	return batch
}

// DecodeKey turns a notification key into the object key it names. S3
// form-encodes keys in notifications, so "+" is a space.
func DecodeKey(raw string) (string, error) {
	key, err := url.QueryUnescape(raw)
	if err != nil {
		return "", &RecordError{Field: "object key", Reason: fmt.Sprintf("is not valid percent-encoding: %v", err)}
	}
	return key, nil
}

// sourceLocation validates the record and decodes its key.
func sourceLocation(evt ReplicationEvent) (Location, error) {
	if strings.TrimSpace(evt.Bucket) == "" {
		return Location{Key: evt.Key}, &RecordError{Field: "bucket name", Reason: "is missing"}
	}
	if evt.Key == "" {
		return Location{Bucket: evt.Bucket}, &RecordError{Field: "object key", Reason: "is missing"}
	}
	key, err := DecodeKey(evt.Key)
	if err != nil {
		return Location{Bucket: evt.Bucket, Key: evt.Key}, err
	}
	return Location{Bucket: evt.Bucket, Key: key}, nil
}
