package members

import (
	"time"

	"github.com/google/uuid"
)

// Membership status values mirrored from the billing platform.
const (
	StatusActive   = "active"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// Member represents a post-purchase customer of a company.
type Member struct {
	ID             uuid.UUID    `json:"id"`
	CompanyID      string       `json:"company_id"`
	ExternalUserID string       `json:"external_user_id"`
	Email          string       `json:"email"`
	FirstName      string       `json:"first_name"`
	LastName       string       `json:"last_name"`
	Memberships    []Membership `json:"memberships"`
	CreatedAt      time.Time    `json:"created_at"`
}

// Membership is one plan subscription held by a member. A member's
// primary membership is the earliest-started one.
type Membership struct {
	ID                   uuid.UUID  `json:"id"`
	CompanyID            string     `json:"company_id"`
	MemberID             uuid.UUID  `json:"member_id"`
	ExternalMembershipID string     `json:"external_membership_id"`
	ProductID            string     `json:"product_id"`
	PlanID               string     `json:"plan_id"`
	Status               string     `json:"status"`
	StartedAt            time.Time  `json:"started_at"`
	CanceledAt           *time.Time `json:"canceled_at,omitempty"`
}

// Primary returns the member's first membership, or nil when there is none.
func (m *Member) Primary() *Membership {
	if len(m.Memberships) == 0 {
		return nil
	}
	return &m.Memberships[0]
}

// TenureDays reports whole days since a membership started.
func (ms *Membership) TenureDays(now time.Time) int {
	return int(now.Sub(ms.StartedAt).Hours() / 24)
}
