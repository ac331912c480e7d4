package attribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/revenueangel/automation-engine/internal/observability/metrics"
	"github.com/revenueangel/automation-engine/internal/sends"
	"github.com/revenueangel/automation-engine/pkg/logging"
)

// SendStore is the subset of the sends store the tracker needs.
type SendStore interface {
	SetClicked(ctx context.Context, id uuid.UUID, clickedAt time.Time) error
	LatestClickedSend(ctx context.Context, companyID string, memberID uuid.UUID, since time.Time) (*sends.Send, error)
}

// ConversionStore persists conversion rows.
type ConversionStore interface {
	Insert(ctx context.Context, c *Conversion) (bool, error)
}

const defaultWindow = 7 * 24 * time.Hour

// Tracker implements last-touch revenue attribution: a conversion is
// credited to the member's most recently clicked send inside the
// attribution window, across all of the company's playbooks.
type Tracker struct {
	sends       SendStore
	conversions ConversionStore
	window      time.Duration
	metrics     *metrics.EngineMetrics
	logger      *logging.Logger
	now         func() time.Time
}

// NewTracker constructs a Tracker with the default 7-day window.
func NewTracker(sendStore SendStore, conversionStore ConversionStore, m *metrics.EngineMetrics, logger *logging.Logger) *Tracker {
	if sendStore == nil {
		panic("attribution: send store required")
	}
	if conversionStore == nil {
		panic("attribution: conversion store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Tracker{
		sends:       sendStore,
		conversions: conversionStore,
		window:      defaultWindow,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// WithWindow overrides the attribution window.
func (t *Tracker) WithWindow(d time.Duration) *Tracker {
	if d > 0 {
		t.window = d
	}
	return t
}

// WithNow overrides the clock. Returns the receiver for chaining.
func (t *Tracker) WithNow(now func() time.Time) *Tracker {
	if now != nil {
		t.now = now
	}
	return t
}

// TrackClick records a click on a sent message. Best-effort: tracking
// failures are logged and never surface to the caller, since a lost
// click must not break the redirect it rides on.
func (t *Tracker) TrackClick(ctx context.Context, sendID uuid.UUID) {
	if err := t.sends.SetClicked(ctx, sendID, t.now()); err != nil {
		t.logger.Warn("failed to record click", "send_id", sendID, "error", err)
	}
}

// RecordConversion stores a payment and attributes it to the member's
// last clicked send within the window, when one exists. Replaying the
// same payment id is a no-op and returns the original outcome shape
// with Attributed reflecting this call's computation.
func (t *Tracker) RecordConversion(ctx context.Context, params ConversionParams) (*Conversion, error) {
	if params.PaymentID == "" {
		return nil, fmt.Errorf("attribution: payment id is required")
	}

	now := t.now()
	conversion := &Conversion{
		CompanyID:    params.CompanyID,
		MemberID:     params.MemberID,
		MembershipID: params.MembershipID,
		PaymentID:    params.PaymentID,
		AmountCents:  params.AmountCents,
		Currency:     params.Currency,
		OccurredAt:   now,
	}

	touch, err := t.sends.LatestClickedSend(ctx, params.CompanyID, params.MemberID, now.Add(-t.window))
	if err != nil && !errors.Is(err, sends.ErrSendNotFound) {
		return nil, fmt.Errorf("attribution: find last touch: %w", err)
	}
	if touch != nil {
		conversion.Attributed = true
		conversion.PlaybookID = &touch.PlaybookID
		conversion.SendID = &touch.ID
	}

	inserted, err := t.conversions.Insert(ctx, conversion)
	if err != nil {
		return nil, err
	}
	if !inserted {
		t.logger.Debug("conversion already recorded", "payment_id", params.PaymentID)
		return conversion, nil
	}

	t.metrics.ObserveConversion(conversion.Attributed)
	t.logger.Info("conversion recorded",
		"payment_id", params.PaymentID,
		"company_id", params.CompanyID,
		"attributed", conversion.Attributed,
		"amount_cents", params.AmountCents,
	)
	return conversion, nil
}
