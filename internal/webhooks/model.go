package webhooks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the membership platform.
const (
	EventPaymentSucceeded      = "payment.succeeded"
	EventPaymentFailed         = "payment.failed"
	EventMembershipActivated   = "membership.activated"
	EventMembershipDeactivated = "membership.deactivated"
)

// WebhookEvent is one persisted inbound platform event.
type WebhookEvent struct {
	ID          uuid.UUID       `json:"id"`
	CompanyID   string          `json:"company_id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Processed   bool            `json:"processed"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// paymentPayload covers payment.succeeded and payment.failed bodies.
type paymentPayload struct {
	PaymentID    string  `json:"payment_id"`
	UserID       string  `json:"user_id"`
	MembershipID string  `json:"membership_id"`
	Email        string  `json:"email"`
	FirstName    string  `json:"first_name"`
	LastName     string  `json:"last_name"`
	ProductID    string  `json:"product_id"`
	PlanID       string  `json:"plan_id"`
	Amount       float64 `json:"amount"`
	Currency     string  `json:"currency"`
}

// membershipPayload covers membership.activated and membership.deactivated bodies.
type membershipPayload struct {
	MembershipID string `json:"membership_id"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	ProductID    string `json:"product_id"`
	PlanID       string `json:"plan_id"`
}
