package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompression(t *testing.T) {
	for name, want := range map[string]kafkago.Compression{
		"":       kafkago.Snappy,
		"GZIP":   kafkago.Gzip,
		"lz4":    kafkago.Lz4,
		" zstd ": kafkago.Zstd,
		"none":   0,
	} {
		got, err := ParseCompression(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}

func TestProducer_Record(t *testing.T) {
	p := NewProducer(ProducerConfig{Brokers: []string{"localhost:9092"}, Topic: "backups"})
	defer p.Close()
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	msg := p.record([]byte("a.pdf"), []byte("{}"), map[string]string{"status": "copied", "event_type": "file_backup"})

	assert.Equal(t, "backups", p.Topic())
	assert.Equal(t, []byte("a.pdf"), msg.Key)
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, []kafkago.Header{
		{Key: "event_type", Value: []byte("file_backup")},
		{Key: "status", Value: []byte("copied")},
	}, msg.Headers)
}
