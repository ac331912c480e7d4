package attribution

import (
	"time"

	"github.com/google/uuid"
)

// Conversion is one successful payment, recorded once per payment id.
// When a clicked send falls within the attribution window the
// conversion is attributed to that send's playbook (last touch).
type Conversion struct {
	ID           uuid.UUID  `json:"id"`
	CompanyID    string     `json:"company_id"`
	MemberID     uuid.UUID  `json:"member_id"`
	MembershipID string     `json:"membership_id,omitempty"`
	PlaybookID   *uuid.UUID `json:"playbook_id,omitempty"`
	SendID       *uuid.UUID `json:"send_id,omitempty"`
	PaymentID    string     `json:"payment_id"`
	AmountCents  int64      `json:"amount_cents"`
	Currency     string     `json:"currency"`
	Attributed   bool       `json:"attributed"`
	OccurredAt   time.Time  `json:"occurred_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ConversionParams carries the facts of a platform payment event.
// MembershipID is the platform's membership id, empty for one-off
// payments.
type ConversionParams struct {
	CompanyID    string
	MemberID     uuid.UUID
	MembershipID string
	PaymentID    string
	AmountCents  int64
	Currency     string
}

// RevenueSummary aggregates a company's conversions over a period.
// Money is integer cents throughout.
type RevenueSummary struct {
	CompanyID              string `json:"company_id"`
	TotalRevenueCents      int64  `json:"total_revenue_cents"`
	AttributedRevenueCents int64  `json:"attributed_revenue_cents"`
	Conversions            int    `json:"conversions"`
	AttributedConversions  int    `json:"attributed_conversions"`
}

// PlaybookStats summarizes one playbook's funnel.
type PlaybookStats struct {
	PlaybookID   uuid.UUID `json:"playbook_id"`
	Sends        int       `json:"sends"`
	Sent         int       `json:"sent"`
	Clicked      int       `json:"clicked"`
	Conversions  int       `json:"conversions"`
	RevenueCents int64     `json:"revenue_cents"`
}
