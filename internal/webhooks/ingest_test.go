package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revenueangel/automation-engine/internal/queue"
	"github.com/revenueangel/automation-engine/pkg/logging"
)

type captureEventStore struct {
	inserted []*WebhookEvent
	err      error
}

func (f *captureEventStore) Insert(_ context.Context, event *WebhookEvent) error {
	if f.err != nil {
		return f.err
	}
	event.ID = uuid.New()
	f.inserted = append(f.inserted, event)
	return nil
}

type captureEnqueuer struct {
	jobs []queue.WebhookJob
	err  error
}

func (f *captureEnqueuer) EnqueueWebhook(_ context.Context, job queue.WebhookJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func TestIngestPersistsThenEnqueues(t *testing.T) {
	store := &captureEventStore{}
	enq := &captureEnqueuer{}
	ing := NewIngestor(store, enq, logging.Default())

	payload := json.RawMessage(`{"payment_id": "pay_1"}`)
	id, err := ing.Ingest(context.Background(), "biz_1", EventPaymentSucceeded, payload)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "biz_1", store.inserted[0].CompanyID)
	assert.Equal(t, EventPaymentSucceeded, store.inserted[0].Type)

	require.Len(t, enq.jobs, 1)
	assert.Equal(t, id, enq.jobs[0].EventID)
	assert.Equal(t, EventPaymentSucceeded, enq.jobs[0].EventType)
}

func TestIngestEnqueueFailureStillReturnsEventID(t *testing.T) {
	store := &captureEventStore{}
	enq := &captureEnqueuer{err: errors.New("queue down")}
	ing := NewIngestor(store, enq, logging.Default())

	id, err := ing.Ingest(context.Background(), "biz_1", EventPaymentFailed, json.RawMessage(`{}`))
	require.Error(t, err)
	assert.NotEqual(t, uuid.Nil, id, "event is persisted even when the enqueue fails")
}

func TestIngestStoreFailure(t *testing.T) {
	store := &captureEventStore{err: errors.New("db down")}
	enq := &captureEnqueuer{}
	ing := NewIngestor(store, enq, logging.Default())

	_, err := ing.Ingest(context.Background(), "biz_1", EventPaymentFailed, json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Empty(t, enq.jobs, "nothing is enqueued when persistence fails")
}
