package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQS caps a single receive at 10 messages and long polls at 20 seconds.
const (
	sqsMaxReceive = 10
	sqsMaxWait    = 20
)

// SQSTransport is the production Transport, backed by AWS or LocalStack SQS.
type SQSTransport struct {
	client   *sqs.Client
	queueURL string
}

// NewSQSTransport wraps an SQS client and queue URL as a Transport.
func NewSQSTransport(client *sqs.Client, queueURL string) *SQSTransport {
	if client == nil {
		panic("queue: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("queue: SQS queueURL cannot be empty")
	}
	return &SQSTransport{client: client, queueURL: queueURL}
}

func (t *SQSTransport) Send(ctx context.Context, body string) error {
	_, err := t.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("queue: send SQS message: %w", err)
	}
	return nil
}

// Receive long-polls the queue. Request sizes beyond SQS's limits are
// clamped rather than rejected so callers can share tuning with the
// in-memory transport.
func (t *SQSTransport) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error) {
	if maxMessages < 1 {
		maxMessages = 1
	} else if maxMessages > sqsMaxReceive {
		maxMessages = sqsMaxReceive
	}
	if waitSeconds < 0 {
		waitSeconds = 0
	} else if waitSeconds > sqsMaxWait {
		waitSeconds = sqsMaxWait
	}

	out, err := t.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(t.queueURL),
		MaxNumberOfMessages: int32(maxMessages),
		WaitTimeSeconds:     int32(waitSeconds),
	})
	if err != nil {
		return nil, fmt.Errorf("queue: receive SQS messages: %w", err)
	}

	messages := make([]Message, len(out.Messages))
	for i, msg := range out.Messages {
		messages[i] = Message{
			ID:            aws.ToString(msg.MessageId),
			Body:          aws.ToString(msg.Body),
			ReceiptHandle: aws.ToString(msg.ReceiptHandle),
		}
	}
	return messages, nil
}

func (t *SQSTransport) Delete(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return nil
	}
	_, err := t.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(t.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("queue: delete SQS message: %w", err)
	}
	return nil
}
