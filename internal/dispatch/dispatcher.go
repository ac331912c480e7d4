package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/revenueangel/automation-engine/internal/delivery"
	"github.com/revenueangel/automation-engine/internal/leads"
	"github.com/revenueangel/automation-engine/internal/members"
	"github.com/revenueangel/automation-engine/internal/observability/metrics"
	"github.com/revenueangel/automation-engine/internal/sends"
	"github.com/revenueangel/automation-engine/pkg/logging"
)

var dispatchTracer = otel.Tracer("revenueangel.internal.dispatch")

// SendStore is the subset of the sends store the dispatcher needs.
type SendStore interface {
	Get(ctx context.Context, id uuid.UUID) (*sends.Send, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time, externalID string) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error
}

// MemberGetter loads one member with memberships.
type MemberGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*members.Member, error)
}

// LeadGetter loads one lead.
type LeadGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*leads.Lead, error)
}

// Channels maps each send channel to its delivery backend. Push and DM
// both ride the platform notification API.
type Channels struct {
	Platform delivery.Channel
	Email    delivery.Channel
}

// For returns the backend for a send channel, or nil when unsupported.
func (c Channels) For(channel string) delivery.Channel {
	switch channel {
	case sends.ChannelPush, sends.ChannelDM:
		return c.Platform
	case sends.ChannelEmail:
		return c.Email
	}
	return nil
}

// Dispatcher delivers queued sends. Every send reaches exactly one
// terminal status; a send another worker already moved out of queued is
// left alone.
type Dispatcher struct {
	sends    SendStore
	members  MemberGetter
	leads    LeadGetter
	channels Channels
	metrics  *metrics.EngineMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// New constructs a Dispatcher.
func New(sendStore SendStore, memberStore MemberGetter, leadStore LeadGetter, channels Channels, m *metrics.EngineMetrics, logger *logging.Logger) *Dispatcher {
	if sendStore == nil {
		panic("dispatch: send store required")
	}
	if memberStore == nil {
		panic("dispatch: member store required")
	}
	if leadStore == nil {
		panic("dispatch: lead store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		sends:    sendStore,
		members:  memberStore,
		leads:    leadStore,
		channels: channels,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock. Returns the receiver for chaining.
func (d *Dispatcher) WithNow(now func() time.Time) *Dispatcher {
	if now != nil {
		d.now = now
	}
	return d
}

// DispatchBatch delivers each send in the batch. Individual failures
// are recorded on the send and do not abort the batch.
func (d *Dispatcher) DispatchBatch(ctx context.Context, sendIDs []uuid.UUID) error {
	for _, id := range sendIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := d.dispatchOne(ctx, id); err != nil {
			d.logger.Error("dispatch failed", "send_id", id, "error", err)
		}
	}
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, id uuid.UUID) error {
	ctx, span := dispatchTracer.Start(ctx, "dispatch.send")
	defer span.End()
	span.SetAttributes(attribute.String("revenueangel.send_id", id.String()))

	send, err := d.sends.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sends.ErrSendNotFound) {
			d.logger.Warn("dispatch requested for unknown send", "send_id", id)
			return nil
		}
		return err
	}

	// Another dispatcher may have won the race, or the send may have
	// been skipped since it was enqueued.
	if send.Status != sends.StatusQueued {
		return nil
	}
	now := d.now()
	if send.ScheduledFor.After(now) {
		return nil
	}

	recipient, skipReason, err := d.resolveRecipient(ctx, send)
	if err != nil {
		return err
	}
	if skipReason != "" {
		d.logger.Info("skipping undeliverable send", "send_id", send.ID, "reason", skipReason)
		d.metrics.ObserveSend(send.Channel, sends.StatusSkipped)
		return d.sends.MarkSkipped(ctx, send.ID, skipReason)
	}

	channel := d.channels.For(send.Channel)
	if channel == nil {
		d.metrics.ObserveSend(send.Channel, sends.StatusSkipped)
		return d.sends.MarkSkipped(ctx, send.ID, fmt.Sprintf("channel %q not configured", send.Channel))
	}

	externalID, err := channel.Deliver(ctx, delivery.Request{
		RecipientID: recipient,
		Content:     send.Content,
		CTALabel:    send.CTALabel,
		CTAPath:     send.CTAPath,
	})
	if err != nil {
		span.RecordError(err)
		d.metrics.ObserveSend(send.Channel, sends.StatusFailed)
		if markErr := d.sends.MarkFailed(ctx, send.ID, err.Error()); markErr != nil {
			return markErr
		}
		d.logger.Warn("delivery failed", "send_id", send.ID, "channel", send.Channel, "error", err)
		return nil
	}

	d.metrics.ObserveSend(send.Channel, sends.StatusSent)
	return d.sends.MarkSent(ctx, send.ID, now, externalID)
}

// resolveRecipient maps a send's target to the channel's recipient id.
// An empty skip reason means the send is deliverable.
func (d *Dispatcher) resolveRecipient(ctx context.Context, send *sends.Send) (recipient, skipReason string, err error) {
	switch {
	case send.MemberID != nil:
		member, err := d.members.GetByID(ctx, *send.MemberID)
		if err != nil {
			if errors.Is(err, members.ErrMemberNotFound) {
				return "", "member no longer exists", nil
			}
			return "", "", err
		}
		if send.Channel == sends.ChannelEmail {
			if member.Email == "" {
				return "", "member has no email address", nil
			}
			return member.Email, "", nil
		}
		if member.ExternalUserID == "" {
			return "", "member has no platform user id", nil
		}
		return member.ExternalUserID, "", nil

	case send.LeadID != nil:
		lead, err := d.leads.GetByID(ctx, *send.LeadID)
		if err != nil {
			if errors.Is(err, leads.ErrLeadNotFound) {
				return "", "lead no longer exists", nil
			}
			return "", "", err
		}
		if send.Channel != sends.ChannelEmail {
			return "", "leads are only reachable by email", nil
		}
		if lead.ContactType != leads.ContactTypeEmail || lead.Contact == "" {
			return "", "lead has no email contact", nil
		}
		return lead.Contact, "", nil
	}
	return "", "send has no target", nil
}
