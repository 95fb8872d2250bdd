package backup

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/filebackup/pkg/notify"
)

type MockNotificationClient struct {
	mock.Mock
}

func (m *MockNotificationClient) Publish(ctx context.Context, msg notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

var copiedOutcome = Outcome{
	Status:      StatusCopied,
	Source:      Location{Bucket: "inbox", Key: "docs/a b.pdf"},
	Destination: Location{Bucket: "backup", Key: "docs/a b.pdf"},
	SizeBytes:   1536,
	ETag:        "abc",
}

func TestNotifier_PublishesCopied(t *testing.T) {
	client := new(MockNotificationClient)
	var sent notify.Message
	client.On("Publish", mock.Anything, mock.AnythingOfType("notify.Message")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(notify.Message) }).
		Return(nil).Once()

	n := NewNotifier(client, false, zap.NewNop())
	n.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	n.Notify(context.Background(), copiedOutcome)

	client.AssertExpectations(t)
	assert.Equal(t, "File Backed Up: docs/a b.pdf", sent.Subject)
	assert.Equal(t, "docs/a b.pdf", sent.Key)
	assert.Equal(t, "file_backup", sent.Attributes["event_type"])
	assert.Equal(t, "copied", sent.Attributes["status"])

	var body Notification
	require.NoError(t, json.Unmarshal(sent.Body, &body))
	assert.Equal(t, StatusCopied, body.Event)
	assert.Equal(t, "s3://inbox/docs/a b.pdf", body.Source)
	assert.Equal(t, "s3://backup/docs/a b.pdf", body.Destination)
	assert.Equal(t, int64(1536), body.SizeBytes)
	assert.Equal(t, "1.5 KiB", body.Size)
	assert.Equal(t, "abc", body.ETag)
	assert.True(t, body.OccurredAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestNotifier_Skipped(t *testing.T) {
	skipped := copiedOutcome
	skipped.Status = StatusSkipped

	t.Run("enabled", func(t *testing.T) {
		client := new(MockNotificationClient)
		client.On("Publish", mock.Anything, mock.MatchedBy(func(msg notify.Message) bool {
			return msg.Subject == "File Already Backed Up: docs/a b.pdf" && msg.Attributes["status"] == "skipped"
		})).Return(nil).Once()

		NewNotifier(client, true, nil).Notify(context.Background(), skipped)
		client.AssertExpectations(t)
	})

	t.Run("disabled", func(t *testing.T) {
		client := new(MockNotificationClient)
		NewNotifier(client, false, nil).Notify(context.Background(), skipped)
		client.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})
}

func TestNotifier_NeverPublishesFailures(t *testing.T) {
	client := new(MockNotificationClient)
	n := NewNotifier(client, true, nil)
	n.Notify(context.Background(), failed(copiedOutcome.Source, copiedOutcome.Destination, ReasonNotFound, errors.New("gone")))
	client.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestNotifier_PublishErrorIsSwallowed(t *testing.T) {
	client := new(MockNotificationClient)
	client.On("Publish", mock.Anything, mock.Anything).Return(errors.New("topic deleted")).Once()

	n := NewNotifier(client, false, nil)
	assert.NotPanics(t, func() { n.Notify(context.Background(), copiedOutcome) })
	client.AssertExpectations(t)
}

func TestNotifier_Disabled(t *testing.T) {
	n := NewNotifier(nil, true, nil)
	assert.False(t, n.Enabled())
	assert.NotPanics(t, func() { n.Notify(context.Background(), copiedOutcome) })
}
