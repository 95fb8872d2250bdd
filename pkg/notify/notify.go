// Package notify publishes replication notifications to a fan-out channel:
// an SNS topic, an SQS queue or a Kafka topic.
package notify

import (
	"context"
	"fmt"
	"strings"
)

// Message is one notification.
type Message struct {
	Subject string
	// Body is the JSON payload.
	Body []byte
	// Key groups related messages (Kafka partition key).
	Key        string
	Attributes map[string]string
}

// Publisher delivers messages to a channel.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Provider names a channel implementation.
type Provider string

const (
	ProviderNone  Provider = ""
	ProviderSNS   Provider = "sns"
	ProviderSQS   Provider = "sqs"
	ProviderKafka Provider = "kafka"
)

// ParseProvider validates a provider name.
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(name))); p {
	case ProviderNone, ProviderSNS, ProviderSQS, ProviderKafka:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported notification provider: %q", name)
	}
}

// Resolve picks the provider to use. An explicit name wins; otherwise the
// first configured channel identifier selects it, in SNS, SQS, Kafka order.
func Resolve(name, topicARN, queueURL, kafkaTopic string) (Provider, error) {
	p, err := ParseProvider(name)
	if err != nil {
		return "", err
	}
	if p != ProviderNone {
		return p, nil
	}
	switch {
	case topicARN != "":
		return ProviderSNS, nil
	case queueURL != "":
		return ProviderSQS, nil
	case kafkaTopic != "":
		return ProviderKafka, nil
	}
	return ProviderNone, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
