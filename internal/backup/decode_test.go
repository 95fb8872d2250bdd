package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEvent = `{
  "Records": [
    {
      "eventVersion": "2.1",
      "eventSource": "aws:s3",
      "eventName": "ObjectCreated:Put",
      "eventTime": "2026-03-01T12:00:00.000Z",
      "s3": {
        "bucket": {"name": "inbox"},
        "object": {"key": "reports/Q1+summary%282%29.pdf", "size": 2048, "sequencer": "0055AED6DCD90281E5"}
      }
    },
    {
      "eventName": "ObjectCreated:CompleteMultipartUpload",
      "s3": {
        "bucket": {"name": "inbox"},
        "object": {"key": "video.mp4"}
      }
    }
  ]
}`

func TestDecodeBatch(t *testing.T) {
	batch, err := DecodeBatch([]byte(sampleEvent))
	require.NoError(t, err)
	require.Len(t, batch, 2)

	first := batch[0]
	assert.Equal(t, "inbox", first.Bucket)
	assert.Equal(t, "reports/Q1+summary%282%29.pdf", first.Key, "keys stay raw until dispatch")
	assert.Equal(t, int64(2048), first.ReportedSize)
	assert.Equal(t, "ObjectCreated:Put", first.EventName)
	assert.Equal(t, "0055AED6DCD90281E5", first.Sequencer)
	assert.Equal(t, 2026, first.EventTime.Year())

	assert.Equal(t, int64(0), batch[1].ReportedSize, "absent size decodes as zero")
}

func TestDecodeBatch_Errors(t *testing.T) {
	_, err := DecodeBatch(nil)
	assert.Error(t, err)

	_, err = DecodeBatch([]byte("  \n"))
	assert.Error(t, err)

	_, err = DecodeBatch([]byte(`{"Records": [`))
	assert.Error(t, err)
}

func TestDecodeBatch_TestEventIsEmpty(t *testing.T) {
	batch, err := DecodeBatch([]byte(`{"Service":"Amazon S3","Event":"s3:TestEvent","Bucket":"inbox"}`))
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestDecodeKey(t *testing.T) {
	cases := map[string]string{
		"plain.txt":              "plain.txt",
		"my+file.txt":            "my file.txt",
		"my%20file.txt":          "my file.txt",
		"a%2Bb.txt":              "a+b.txt",
		"dir/sub%2Fdir/%C3%A9.x": "dir/sub/dir/é.x",
	}
	for raw, want := range cases {
		got, err := DecodeKey(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := DecodeKey("broken%zz")
	var recErr *RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "object key", recErr.Field)
}

func TestSourceLocation(t *testing.T) {
	loc, err := sourceLocation(ReplicationEvent{Bucket: "inbox", Key: "a+b.txt"})
	require.NoError(t, err)
	assert.Equal(t, Location{Bucket: "inbox", Key: "a b.txt"}, loc)

	_, err = sourceLocation(ReplicationEvent{Key: "a.txt"})
	assert.Equal(t, ReasonInvalidRecord, classify(err))

	_, err = sourceLocation(ReplicationEvent{Bucket: "inbox"})
	assert.Equal(t, ReasonInvalidRecord, classify(err))
}
