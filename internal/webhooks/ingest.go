package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/revenueangel/automation-engine/internal/queue"
	"github.com/revenueangel/automation-engine/pkg/logging"
)

// EventStore is the persistence surface the ingestor needs.
type EventStore interface {
	Insert(ctx context.Context, event *WebhookEvent) error
}

// Enqueuer hands persisted events to the async processor.
type Enqueuer interface {
	EnqueueWebhook(ctx context.Context, job queue.WebhookJob) error
}

// Ingestor persists inbound platform events and queues them for
// processing. Persistence comes first so an enqueue failure never
// loses the event; the auto-dispatch of unprocessed events is left to
// queue redelivery or manual replay.
type Ingestor struct {
	store  EventStore
	queue  Enqueuer
	logger *logging.Logger
}

// NewIngestor constructs an Ingestor.
func NewIngestor(store EventStore, enqueuer Enqueuer, logger *logging.Logger) *Ingestor {
	if store == nil {
		panic("webhooks: event store required")
	}
	if enqueuer == nil {
		panic("webhooks: enqueuer required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Ingestor{store: store, queue: enqueuer, logger: logger}
}

// Ingest stores the raw event and enqueues a processor job. Returns the
// persisted event id.
func (i *Ingestor) Ingest(ctx context.Context, companyID, eventType string, payload json.RawMessage) (uuid.UUID, error) {
	event := &WebhookEvent{
		CompanyID: companyID,
		Type:      eventType,
		Payload:   payload,
	}
	if err := i.store.Insert(ctx, event); err != nil {
		return uuid.Nil, err
	}

	job := queue.WebhookJob{
		EventID:   event.ID,
		EventType: eventType,
		CompanyID: companyID,
	}
	if err := i.queue.EnqueueWebhook(ctx, job); err != nil {
		return event.ID, fmt.Errorf("webhooks: enqueue processor job: %w", err)
	}

	i.logger.Debug("webhook event ingested", "event_id", event.ID, "type", eventType, "company_id", companyID)
	return event.ID, nil
}
