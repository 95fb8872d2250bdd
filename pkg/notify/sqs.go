package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SubjectAttribute carries the subject on channels without a subject field.
const SubjectAttribute = "subject"

// SQSAPI is the subset of the SQS client used by SQSPublisher.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends notifications to an SQS queue.
type SQSPublisher struct {
	api      SQSAPI
	queueURL string
}

// NewSQSPublisher creates a publisher for queueURL.
func NewSQSPublisher(api SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{api: api, queueURL: queueURL}
}

// NewSQSPublisherFromConfig builds the SQS client from an AWS configuration.
func NewSQSPublisherFromConfig(cfg aws.Config, queueURL string) *SQSPublisher {
	return NewSQSPublisher(sqs.NewFromConfig(cfg), queueURL)
}

// Publish sends msg as one SQS message; the subject travels as an attribute.
func (p *SQSPublisher) Publish(ctx context.Context, msg Message) error {
	attrs := make(map[string]types.MessageAttributeValue, len(msg.Attributes)+1)
	for k, v := range msg.Attributes {
		attrs[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}
	if msg.Subject != "" {
		attrs[SubjectAttribute] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(msg.Subject),
		}
	}

	_, err := p.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(p.queueURL),
		MessageBody:       aws.String(string(msg.Body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("send message to sqs queue %s: %w", p.queueURL, err)
	}
	return nil
}
