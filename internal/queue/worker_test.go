package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revenueangel/automation-engine/pkg/logging"
)

func TestClientAndWorkerRoundTrip(t *testing.T) {
	transport := NewMemoryTransport(16)
	client := NewClient(transport)
	worker := NewWorker(transport, logging.Default(), WithReceiveWaitSeconds(1))

	var mu sync.Mutex
	var got []SchedulerJob
	done := make(chan struct{})

	worker.Register(JobPlaybookScheduler, 1, func(ctx context.Context, payload json.RawMessage) error {
		var job SchedulerJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, job)
		mu.Unlock()
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	require.NoError(t, client.EnqueueSchedulerRun(ctx, SchedulerJob{CompanyID: "biz_1"}))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler job was not processed")
	}

	cancel()
	worker.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "biz_1", got[0].CompanyID)
}

func TestWorkerRetriesThenAbandons(t *testing.T) {
	transport := NewMemoryTransport(16)
	client := NewClient(transport)
	worker := NewWorker(transport, logging.Default(),
		WithReceiveWaitSeconds(1),
		WithMaxAttempts(3),
	)

	var mu sync.Mutex
	attempts := 0
	third := make(chan struct{})

	worker.Register(JobWebhookProcessor, 1, func(ctx context.Context, payload json.RawMessage) error {
		mu.Lock()
		attempts++
		if attempts == 3 {
			close(third)
		}
		mu.Unlock()
		return errors.New("handler always fails")
	})

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	require.NoError(t, client.EnqueueWebhook(ctx, WebhookJob{
		EventID:   uuid.New(),
		EventType: "payment.succeeded",
		CompanyID: "biz_1",
	}))

	select {
	case <-third:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not retried to its attempt budget")
	}

	// Give a moment for a fourth attempt that must not happen.
	time.Sleep(200 * time.Millisecond)
	cancel()
	worker.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestWorkerRoutesByJobType(t *testing.T) {
	transport := NewMemoryTransport(16)
	client := NewClient(transport)
	worker := NewWorker(transport, logging.Default(), WithReceiveWaitSeconds(1))

	dispatchDone := make(chan DispatcherJob, 1)
	webhookDone := make(chan WebhookJob, 1)

	worker.Register(JobMessageDispatcher, 2, func(ctx context.Context, payload json.RawMessage) error {
		var job DispatcherJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return err
		}
		dispatchDone <- job
		return nil
	})
	worker.Register(JobWebhookProcessor, 2, func(ctx context.Context, payload json.RawMessage) error {
		var job WebhookJob
		if err := json.Unmarshal(payload, &job); err != nil {
			return err
		}
		webhookDone <- job
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	sendID := uuid.New()
	eventID := uuid.New()
	require.NoError(t, client.EnqueueDispatch(ctx, []uuid.UUID{sendID}))
	require.NoError(t, client.EnqueueWebhook(ctx, WebhookJob{EventID: eventID, EventType: "payment.failed", CompanyID: "biz_2"}))

	select {
	case job := <-dispatchDone:
		require.Len(t, job.SendIDs, 1)
		assert.Equal(t, sendID, job.SendIDs[0])
	case <-time.After(3 * time.Second):
		t.Fatal("dispatcher job was not processed")
	}

	select {
	case job := <-webhookDone:
		assert.Equal(t, eventID, job.EventID)
		assert.Equal(t, "payment.failed", job.EventType)
	case <-time.After(3 * time.Second):
		t.Fatal("webhook job was not processed")
	}

	cancel()
	worker.Wait()
}

func TestEnqueueDispatchDropsEmptyBatch(t *testing.T) {
	transport := NewMemoryTransport(1)
	client := NewClient(transport)

	require.NoError(t, client.EnqueueDispatch(context.Background(), nil))

	msgs, err := transport.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := decodeEnvelope("not json")
	assert.Error(t, err)

	_, err = decodeEnvelope(`{"payload": {}}`)
	assert.Error(t, err)
}
