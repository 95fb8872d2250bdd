package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/your-org/filebackup/pkg/notify"
)

const defaultPublishTimeout = 10 * time.Second

// NotificationClient publishes to the configured channel.
type NotificationClient interface {
	Publish(ctx context.Context, msg notify.Message) error
}

// Notification is the JSON body published for a successful outcome.
type Notification struct {
	Event       Status    `json:"event"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	SizeBytes   int64     `json:"size_bytes"`
	Size        string    `json:"size"`
	ETag        string    `json:"etag,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier reports successful outcomes. Delivery is best-effort: failures
// are logged and never change the outcome.
type Notifier struct {
	client        NotificationClient
	notifySkipped bool
	timeout       time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// NewNotifier constructs a Notifier. A nil client disables notifications.
func NewNotifier(client NotificationClient, notifySkipped bool, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		client:        client,
		notifySkipped: notifySkipped,
		timeout:       defaultPublishTimeout,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether a channel is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.client != nil
}

// Notify publishes o if it is notify-worthy.
func (n *Notifier) Notify(ctx context.Context, o Outcome) {
	if !n.Enabled() {
		return
	}
	switch o.Status {
	case StatusCopied:
	case StatusSkipped:
		if !n.notifySkipped {
			return
		}
	default:
		return
	}

	msg, err := n.message(o)
	if err != nil {
		n.logger.Error("failed to build notification", zap.String("source", o.Source.String()), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.client.Publish(ctx, msg); err != nil {
		n.logger.Error("failed to send notification",
			zap.String("event", string(o.Status)),
			zap.String("destination", o.Destination.String()),
			zap.Error(err))
		return
	}
	n.logger.Info("notification sent",
		zap.String("event", string(o.Status)),
		zap.String("destination", o.Destination.String()))
}

func (n *Notifier) message(o Outcome) (notify.Message, error) {
	body, err := json.Marshal(Notification{
		Event:       o.Status,
		Source:      o.Source.String(),
		Destination: o.Destination.String(),
		SizeBytes:   o.SizeBytes,
		Size:        humanize.IBytes(uint64(max(o.SizeBytes, 0))),
		ETag:        o.ETag,
		OccurredAt:  n.now(),
	})
	if err != nil {
		return notify.Message{}, fmt.Errorf("marshal notification: %w", err)
	}

	subject := "File Backed Up: " + o.Source.Key
	if o.Status == StatusSkipped {
		subject = "File Already Backed Up: " + o.Source.Key
	}

	return notify.Message{
		Subject: subject,
		Body:    body,
		Key:     o.Destination.Key,
		Attributes: map[string]string{
			"event_type": "file_backup",
			"status":     string(o.Status),
		},
	}, nil
}
