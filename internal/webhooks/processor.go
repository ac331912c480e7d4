package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/revenueangel/automation-engine/internal/attribution"
	"github.com/revenueangel/automation-engine/internal/members"
	"github.com/revenueangel/automation-engine/internal/observability/metrics"
	"github.com/revenueangel/automation-engine/internal/playbooks"
	"github.com/revenueangel/automation-engine/internal/render"
	"github.com/revenueangel/automation-engine/internal/sends"
	"github.com/revenueangel/automation-engine/pkg/logging"
)

// ProcessorEventStore loads events and flips their processed flag.
type ProcessorEventStore interface {
	Get(ctx context.Context, id uuid.UUID) (*WebhookEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// MemberStore is the member persistence surface the processor needs.
type MemberStore interface {
	UpsertMember(ctx context.Context, companyID, externalUserID, email, firstName, lastName string) (*members.Member, error)
	FindByExternalUserID(ctx context.Context, companyID, externalUserID string) (*members.Member, error)
	UpsertMembership(ctx context.Context, ms *members.Membership) error
	UpdateMembershipStatus(ctx context.Context, externalMembershipID, status string, canceledAt *time.Time) error
}

// PlaybookLister loads enabled playbooks of one type.
type PlaybookLister interface {
	ListEnabledByType(ctx context.Context, companyID, playbookType string) ([]playbooks.Playbook, error)
}

// SendStore is the subset of the sends store the processor needs.
type SendStore interface {
	CreateQueued(ctx context.Context, send *sends.Send) (bool, error)
	HasRecentForPlaybookMember(ctx context.Context, playbookID, memberID uuid.UUID, since time.Time) (bool, error)
}

// ConversionRecorder records payment conversions with attribution.
type ConversionRecorder interface {
	RecordConversion(ctx context.Context, params attribution.ConversionParams) (*attribution.Conversion, error)
}

const defaultRetriggerWindow = 7 * 24 * time.Hour

// Processor handles persisted platform events. Processing is
// idempotent: an already-processed event is a no-op, and every mutation
// along the way tolerates replays. Errors propagate so the queue can
// redeliver.
type Processor struct {
	events          ProcessorEventStore
	members         MemberStore
	playbooks       PlaybookLister
	sends           SendStore
	conversions     ConversionRecorder
	metrics         *metrics.EngineMetrics
	logger          *logging.Logger
	retriggerWindow time.Duration
	now             func() time.Time
}

// NewProcessor constructs a Processor.
func NewProcessor(
	events ProcessorEventStore,
	memberStore MemberStore,
	playbookStore PlaybookLister,
	sendStore SendStore,
	conversions ConversionRecorder,
	m *metrics.EngineMetrics,
	logger *logging.Logger,
) *Processor {
	if events == nil {
		panic("webhooks: event store required")
	}
	if memberStore == nil {
		panic("webhooks: member store required")
	}
	if playbookStore == nil {
		panic("webhooks: playbook store required")
	}
	if sendStore == nil {
		panic("webhooks: send store required")
	}
	if conversions == nil {
		panic("webhooks: conversion recorder required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Processor{
		events:          events,
		members:         memberStore,
		playbooks:       playbookStore,
		sends:           sendStore,
		conversions:     conversions,
		metrics:         m,
		logger:          logger,
		retriggerWindow: defaultRetriggerWindow,
		now:             time.Now,
	}
}

// WithRetriggerWindow overrides how long a member is shielded from
// repeat churn-save entry after a prior send.
func (p *Processor) WithRetriggerWindow(d time.Duration) *Processor {
	if d > 0 {
		p.retriggerWindow = d
	}
	return p
}

// WithNow overrides the clock. Returns the receiver for chaining.
func (p *Processor) WithNow(now func() time.Time) *Processor {
	if now != nil {
		p.now = now
	}
	return p
}

// Process handles one persisted event by id.
func (p *Processor) Process(ctx context.Context, eventID uuid.UUID) error {
	event, err := p.events.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Processed {
		p.logger.Debug("skipping already-processed event", "event_id", event.ID, "type", event.Type)
		p.metrics.ObserveWebhook(event.Type, "replayed")
		return nil
	}

	switch event.Type {
	case EventPaymentSucceeded:
		err = p.handlePaymentSucceeded(ctx, event)
	case EventPaymentFailed:
		err = p.handlePaymentFailed(ctx, event)
	case EventMembershipActivated:
		err = p.handleMembershipActivated(ctx, event)
	case EventMembershipDeactivated:
		err = p.handleMembershipDeactivated(ctx, event)
	default:
		p.logger.Warn("ignoring unknown event type", "event_id", event.ID, "type", event.Type)
	}
	if err != nil {
		p.metrics.ObserveWebhook(event.Type, "error")
		return fmt.Errorf("webhooks: process %s: %w", event.Type, err)
	}

	if _, err := p.events.MarkProcessed(ctx, event.ID, p.now()); err != nil {
		return err
	}
	p.metrics.ObserveWebhook(event.Type, "processed")
	return nil
}

func (p *Processor) handlePaymentSucceeded(ctx context.Context, event *WebhookEvent) error {
	var payload paymentPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.UserID == "" {
		return fmt.Errorf("payment.succeeded missing user_id")
	}

	member, err := p.members.UpsertMember(ctx, event.CompanyID, payload.UserID, payload.Email, payload.FirstName, payload.LastName)
	if err != nil {
		return err
	}

	if payload.MembershipID != "" {
		ms := &members.Membership{
			CompanyID:            event.CompanyID,
			MemberID:             member.ID,
			ExternalMembershipID: payload.MembershipID,
			ProductID:            payload.ProductID,
			PlanID:               payload.PlanID,
			Status:               members.StatusActive,
			StartedAt:            p.now(),
		}
		if err := p.members.UpsertMembership(ctx, ms); err != nil {
			return err
		}
	}

	if payload.PaymentID == "" {
		p.logger.Warn("payment.succeeded without payment_id, skipping conversion", "event_id", event.ID)
		return nil
	}
	_, err = p.conversions.RecordConversion(ctx, attribution.ConversionParams{
		CompanyID:    event.CompanyID,
		MemberID:     member.ID,
		MembershipID: payload.MembershipID,
		PaymentID:    payload.PaymentID,
		AmountCents:  int64(math.Round(payload.Amount * 100)),
		Currency:     payload.Currency,
	})
	return err
}

func (p *Processor) handlePaymentFailed(ctx context.Context, event *WebhookEvent) error {
	var payload paymentPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.UserID == "" {
		return fmt.Errorf("payment.failed missing user_id")
	}

	member, err := p.members.FindByExternalUserID(ctx, event.CompanyID, payload.UserID)
	if err != nil {
		if err == members.ErrMemberNotFound {
			p.logger.Info("payment.failed for unknown member, ignoring", "user_id", payload.UserID)
			return nil
		}
		return err
	}

	if payload.MembershipID != "" {
		if err := p.members.UpdateMembershipStatus(ctx, payload.MembershipID, members.StatusPastDue, nil); err != nil {
			return err
		}
	}

	return p.enterChurnSave(ctx, event.CompanyID, member)
}

// enterChurnSave queues the first step of every enabled churn-save
// playbook for the member, unless the member already got one inside the
// re-trigger window. Repeated payment failures slide the window.
func (p *Processor) enterChurnSave(ctx context.Context, companyID string, member *members.Member) error {
	books, err := p.playbooks.ListEnabledByType(ctx, companyID, playbooks.TypeChurnSave)
	if err != nil {
		return err
	}
	now := p.now()
	vars := render.MemberVars(member)

	for i := range books {
		book := &books[i]
		step := book.FirstStep()
		if step == nil {
			continue
		}

		recent, err := p.sends.HasRecentForPlaybookMember(ctx, book.ID, member.ID, now.Add(-p.retriggerWindow))
		if err != nil {
			return err
		}
		if recent {
			p.logger.Debug("member inside churn-save re-trigger window, skipping",
				"playbook_id", book.ID,
				"member_id", member.ID,
			)
			continue
		}

		send := &sends.Send{
			CompanyID:    companyID,
			PlaybookID:   book.ID,
			StepID:       step.ID,
			MemberID:     &member.ID,
			Channel:      step.Channel,
			Content:      render.Render(step.Template.Body, vars),
			CTALabel:     step.Template.CTALabel,
			CTAPath:      step.Template.CTAPath,
			ScheduledFor: now,
		}
		inserted, err := p.sends.CreateQueued(ctx, send)
		if err != nil {
			return err
		}
		if inserted {
			p.logger.Info("churn-save entry queued",
				"playbook_id", book.ID,
				"member_id", member.ID,
				"send_id", send.ID,
			)
		}
	}
	return nil
}

func (p *Processor) handleMembershipActivated(ctx context.Context, event *WebhookEvent) error {
	var payload membershipPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.UserID == "" || payload.MembershipID == "" {
		return fmt.Errorf("membership.activated missing user_id or membership_id")
	}

	member, err := p.members.UpsertMember(ctx, event.CompanyID, payload.UserID, payload.Email, payload.FirstName, payload.LastName)
	if err != nil {
		return err
	}
	return p.members.UpsertMembership(ctx, &members.Membership{
		CompanyID:            event.CompanyID,
		MemberID:             member.ID,
		ExternalMembershipID: payload.MembershipID,
		ProductID:            payload.ProductID,
		PlanID:               payload.PlanID,
		Status:               members.StatusActive,
		StartedAt:            p.now(),
	})
}

func (p *Processor) handleMembershipDeactivated(ctx context.Context, event *WebhookEvent) error {
	var payload membershipPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if payload.MembershipID == "" {
		return fmt.Errorf("membership.deactivated missing membership_id")
	}

	canceledAt := p.now()
	return p.members.UpdateMembershipStatus(ctx, payload.MembershipID, members.StatusCanceled, &canceledAt)
}
