package playbooks

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Playbook types determine which audience the scheduler evaluates.
const (
	TypeNurture   = "nurture"
	TypeUpsell    = "upsell"
	TypeChurnSave = "churnsave"
)

// Playbook is a configured multi-step messaging sequence.
type Playbook struct {
	ID          uuid.UUID       `json:"id"`
	CompanyID   string          `json:"company_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Enabled     bool            `json:"enabled"`
	TargetRules json.RawMessage `json:"target_rules"`
	Steps       []Step          `json:"steps"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Step is one ordered stage of a playbook. Order is 1-based and dense
// within a playbook; DelayMinutes offsets from the previous step's send
// (or from entry, for step 1).
type Step struct {
	ID           uuid.UUID       `json:"id"`
	PlaybookID   uuid.UUID       `json:"playbook_id"`
	Order        int             `json:"order"`
	DelayMinutes int             `json:"delay_minutes"`
	Channel      string          `json:"channel"`
	Template     MessageTemplate `json:"template"`
}

// MessageTemplate holds the body and call-to-action for a step.
type MessageTemplate struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Tone     string    `json:"tone"`
	Body     string    `json:"body"`
	CTALabel string    `json:"cta_label"`
	CTAPath  string    `json:"cta_path"`
}

// FirstStep returns the lowest-order step, or nil when the playbook has none.
func (p *Playbook) FirstStep() *Step {
	if len(p.Steps) == 0 {
		return nil
	}
	return &p.Steps[0]
}

// StepBefore returns the step whose order immediately precedes the given one.
func (p *Playbook) StepBefore(order int) *Step {
	for i := range p.Steps {
		if p.Steps[i].Order == order-1 {
			return &p.Steps[i]
		}
	}
	return nil
}
