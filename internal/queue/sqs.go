package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQS limits for FIFO queues.
const (
	maxSQSDelay = 15 * time.Minute
	maxSQSBatch = 10
)

// message attributes carried next to the JSON body
const (
	attrEventID   = "event_id"
	attrEventName = "event_name"
	attrNode      = "node"
)

var _ Queue = (*sqsQueue)(nil)

// SQSAPI is the subset of the SQS client used by the queue.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, opts ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, in *sqs.ChangeMessageVisibilityInput, opts ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type SQSConfig struct {
	// QueueURL must point to a FIFO queue. Messages are grouped by node so
	// a drain and a later leave for the same node are never reordered.
	QueueURL          string
	Client            SQSAPI
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	Logger            *slog.Logger
}

type sqsQueue struct {
	queueURL          string
	client            SQSAPI
	pollInterval      time.Duration
	visibilityTimeout time.Duration
	logger            *slog.Logger
}

func NewSQSQueue(cfg *SQSConfig) Queue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &sqsQueue{
		queueURL:          cfg.QueueURL,
		client:            cfg.Client,
		pollInterval:      cfg.PollInterval,
		visibilityTimeout: cfg.VisibilityTimeout,
		logger:            logger,
	}
}

func (q *sqsQueue) Push(ctx context.Context, event *Event, delay time.Duration) error {
	if delay < 0 || delay > maxSQSDelay {
		return fmt.Errorf("invalid delay %s for %s event: must be between 0 and %s", delay, event.Name, maxSQSDelay)
	}

	out, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(q.queueURL),
		MessageBody:  aws.String(string(event.Data)),
		DelaySeconds: int32(delay / time.Second),
		MessageAttributes: map[string]types.MessageAttributeValue{
			attrEventID:   stringAttr(event.ID),
			attrEventName: stringAttr(string(event.Name)),
			attrNode:      stringAttr(event.Node),
		},
		MessageDeduplicationId: aws.String(event.ID),
		MessageGroupId:         aws.String(groupID(event)),
	})
	if err != nil {
		return fmt.Errorf("failed to send %s event for node %s: %w", event.Name, event.Node, err)
	}

	q.logger.Debug("pushed event to queue",
		slog.String("event_id", event.ID),
		slog.String("node", event.Node),
		slog.String("message_id", aws.ToString(out.MessageId)),
	)

	return nil
}

func (q *sqsQueue) Pop(ctx context.Context, max int) ([]*Event, error) {
	if max <= 0 || max > maxSQSBatch {
		max = maxSQSBatch
	}

	resp, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                aws.String(q.queueURL),
		MaxNumberOfMessages:     int32(max),
		ReceiveRequestAttemptId: aws.String(strconv.FormatInt(time.Now().UnixNano(), 10)),
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeName(types.MessageSystemAttributeNameApproximateReceiveCount),
		},
		MessageAttributeNames: []string{attrEventID, attrEventName, attrNode},
		VisibilityTimeout:     int32(q.visibilityTimeout / time.Second),
		WaitTimeSeconds:       int32(q.pollInterval / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive events: %w", err)
	}

	if len(resp.Messages) == 0 {
		return nil, nil
	}

	events := make([]*Event, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		event := fromMessage(msg)
		if !event.Name.Known() {
			q.logger.Warn("received unknown event",
				slog.String("event_id", event.ID),
				slog.String("event", string(event.Name)),
			)
		}

		events = append(events, event)
	}

	return events, nil
}

func (q *sqsQueue) Retry(ctx context.Context, event *Event) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.queueURL),
		ReceiptHandle:     aws.String(event.receipt),
		VisibilityTimeout: 0,
	})
	if err != nil {
		return fmt.Errorf("failed to release event %s: %w", event.ID, err)
	}

	return nil
}

func (q *sqsQueue) Remove(ctx context.Context, event *Event) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(event.receipt),
	})
	if err != nil {
		return fmt.Errorf("failed to delete event %s: %w", event.ID, err)
	}

	return nil
}

// fromMessage rebuilds an event from its attributes. Messages sent without
// an event id fall back to the SQS message id.
func fromMessage(msg types.Message) *Event {
	id := attr(msg, attrEventID)
	if id == "" {
		id = aws.ToString(msg.MessageId)
	}

	// ApproximateReceiveCount counts this delivery too.
	var retries int
	count := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]
	if n, err := strconv.Atoi(count); err == nil && n > 0 {
		retries = n - 1
	}

	return &Event{
		receipt: aws.ToString(msg.ReceiptHandle),

		ID:         id,
		Name:       EventName(attr(msg, attrEventName)),
		Node:       attr(msg, attrNode),
		Data:       []byte(aws.ToString(msg.Body)),
		RetryCount: retries,
	}
}

func groupID(event *Event) string {
	if event.Node == "" {
		return string(event.Name)
	}

	return "node/" + event.Node
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}

func attr(msg types.Message, name string) string {
	return aws.ToString(msg.MessageAttributes[name].StringValue)
}
