package queue

import (
	"context"

	"github.com/google/uuid"
)

// Client enqueues jobs onto the shared transport. Construct one per
// process and pass it to whatever needs to enqueue work.
type Client struct {
	transport Transport
}

// NewClient creates an enqueue-side client.
func NewClient(transport Transport) *Client {
	if transport == nil {
		panic("queue: transport required")
	}
	return &Client{transport: transport}
}

// EnqueueSchedulerRun queues a playbook evaluation pass for a company.
func (c *Client) EnqueueSchedulerRun(ctx context.Context, job SchedulerJob) error {
	body, err := encodeEnvelope(JobPlaybookScheduler, job, 0)
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, body)
}

// EnqueueDispatch queues a delivery batch. Empty batches are dropped.
func (c *Client) EnqueueDispatch(ctx context.Context, sendIDs []uuid.UUID) error {
	if len(sendIDs) == 0 {
		return nil
	}
	body, err := encodeEnvelope(JobMessageDispatcher, DispatcherJob{SendIDs: sendIDs}, 0)
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, body)
}

// EnqueueWebhook queues processing of a persisted webhook event.
func (c *Client) EnqueueWebhook(ctx context.Context, job WebhookJob) error {
	body, err := encodeEnvelope(JobWebhookProcessor, job, 0)
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, body)
}

func (c *Client) retry(ctx context.Context, env *envelope) error {
	body, err := encodeEnvelope(env.Type, env.Payload, env.Attempt+1)
	if err != nil {
		return err
	}
	return c.transport.Send(ctx, body)
}
