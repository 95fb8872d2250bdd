package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// maxSubjectLen is the SNS limit for email subjects.
const maxSubjectLen = 100

// SNSAPI is the subset of the SNS client used by SNSPublisher.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes to an SNS topic.
type SNSPublisher struct {
	api      SNSAPI
	topicARN string
}

// NewSNSPublisher creates a publisher for topicARN.
func NewSNSPublisher(api SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{api: api, topicARN: topicARN}
}

// NewSNSPublisherFromConfig builds the SNS client from an AWS configuration.
func NewSNSPublisherFromConfig(cfg aws.Config, topicARN string) *SNSPublisher {
	return NewSNSPublisher(sns.NewFromConfig(cfg), topicARN)
}

// Publish sends msg to the topic. Subjects are reduced to printable ASCII
// and truncated, which SNS requires for email delivery.
func (p *SNSPublisher) Publish(ctx context.Context, msg Message) error {
	input := &sns.PublishInput{
		TopicArn:          aws.String(p.topicARN),
		Message:           aws.String(string(msg.Body)),
		MessageAttributes: make(map[string]types.MessageAttributeValue, len(msg.Attributes)),
	}
	if subject := snsSubject(msg.Subject); subject != "" {
		input.Subject = aws.String(subject)
	}
	for k, v := range msg.Attributes {
		input.MessageAttributes[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	if _, err := p.api.Publish(ctx, input); err != nil {
		return fmt.Errorf("publish to sns topic %s: %w", p.topicARN, err)
	}
	return nil
}

func snsSubject(subject string) string {
	var b strings.Builder
	for _, r := range subject {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 0x20 || r > 0x7e:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	return truncate(strings.TrimSpace(b.String()), maxSubjectLen)
}
