package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Job types routed through the shared queue.
const (
	JobPlaybookScheduler = "playbook-scheduler"
	JobMessageDispatcher = "message-dispatcher"
	JobWebhookProcessor  = "webhook-processor"
)

// envelope wraps every queued job with its type and delivery attempt.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt"`
}

// SchedulerJob asks the scheduler to evaluate one company's playbooks.
type SchedulerJob struct {
	CompanyID string `json:"company_id"`
}

// DispatcherJob asks the dispatcher to deliver a batch of queued sends.
type DispatcherJob struct {
	SendIDs []uuid.UUID `json:"send_ids"`
}

// WebhookJob asks the webhook processor to handle a persisted event.
type WebhookJob struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType string    `json:"event_type"`
	CompanyID string    `json:"company_id"`
}

func encodeEnvelope(jobType string, payload any, attempt int) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: marshal %s payload: %w", jobType, err)
	}
	body, err := json.Marshal(envelope{Type: jobType, Payload: raw, Attempt: attempt})
	if err != nil {
		return "", fmt.Errorf("queue: marshal %s envelope: %w", jobType, err)
	}
	return string(body), nil
}

func decodeEnvelope(body string) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, fmt.Errorf("queue: unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("queue: envelope missing type")
	}
	return &env, nil
}
