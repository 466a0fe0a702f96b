// Package queue publishes access-change notifications to SQS for downstream
// consumers (cache invalidation, client push).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"edgealtar/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// AccessEventPublisher sends AccessChanged messages to one queue.
type AccessEventPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
	now      func() time.Time
}

// NewAccessEventPublisher returns nil when queueURL is empty so callers can
// treat publishing as disabled.
func NewAccessEventPublisher(client SQSSender, queueURL string, logger *slog.Logger) *AccessEventPublisher {
	if queueURL == "" || client == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessEventPublisher{client: client, queueURL: queueURL, logger: logger, now: time.Now}
}

// Publish fills in ID and OccurredAt when unset and sends the message.
func (p *AccessEventPublisher) Publish(ctx context.Context, evt types.AccessChanged) error {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = p.now().UTC()
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal AccessChanged: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"source": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(evt.Source)),
			},
			"access_level": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(evt.AccessLevel)),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send AccessChanged to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "access change published",
		"message_id", evt.ID,
		"user_id", evt.UserID,
		"access_level", string(evt.AccessLevel),
		"source", string(evt.Source),
		"event_id", evt.EventID,
	)
	return nil
}
