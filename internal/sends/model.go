package sends

import (
	"time"

	"github.com/google/uuid"
)

// Send lifecycle statuses. A send is created queued and moves to exactly
// one terminal status.
const (
	StatusQueued  = "queued"
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Delivery channels.
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
	ChannelDM    = "dm"
)

// Send is one scheduled message to one target for one playbook step.
type Send struct {
	ID           uuid.UUID  `json:"id"`
	CompanyID    string     `json:"company_id"`
	PlaybookID   uuid.UUID  `json:"playbook_id"`
	StepID       uuid.UUID  `json:"step_id"`
	MemberID     *uuid.UUID `json:"member_id,omitempty"`
	LeadID       *uuid.UUID `json:"lead_id,omitempty"`
	Channel      string     `json:"channel"`
	Content      string     `json:"content"`
	CTALabel     string     `json:"cta_label,omitempty"`
	CTAPath      string     `json:"cta_path,omitempty"`
	Status       string     `json:"status"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ClickedAt    *time.Time `json:"clicked_at,omitempty"`
	ExternalID   string     `json:"external_id,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TargetRef identifies the recipient of a send: exactly one of MemberID
// or LeadID is set.
type TargetRef struct {
	MemberID *uuid.UUID
	LeadID   *uuid.UUID
}

// MemberTarget builds a TargetRef for a member.
func MemberTarget(id uuid.UUID) TargetRef {
	return TargetRef{MemberID: &id}
}

// LeadTarget builds a TargetRef for a lead.
func LeadTarget(id uuid.UUID) TargetRef {
	return TargetRef{LeadID: &id}
}

// Target returns the send's recipient reference.
func (s *Send) Target() TargetRef {
	return TargetRef{MemberID: s.MemberID, LeadID: s.LeadID}
}
