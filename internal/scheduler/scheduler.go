package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/revenueangel/automation-engine/internal/leads"
	"github.com/revenueangel/automation-engine/internal/members"
	"github.com/revenueangel/automation-engine/internal/playbooks"
	"github.com/revenueangel/automation-engine/internal/render"
	"github.com/revenueangel/automation-engine/internal/sends"
	"github.com/revenueangel/automation-engine/pkg/logging"
)

// PlaybookLister loads enabled playbooks with steps preloaded.
type PlaybookLister interface {
	ListEnabled(ctx context.Context, companyID string) ([]playbooks.Playbook, error)
}

// LeadLister loads a company's leads.
type LeadLister interface {
	ListByCompany(ctx context.Context, companyID string) ([]leads.Lead, error)
}

// MemberLister loads a company's members with their memberships.
type MemberLister interface {
	ListWithMemberships(ctx context.Context, companyID string) ([]members.Member, error)
}

// SendStore is the subset of the sends store the scheduler needs.
type SendStore interface {
	CreateQueued(ctx context.Context, send *sends.Send) (bool, error)
	FindStepSend(ctx context.Context, playbookID, stepID uuid.UUID, target sends.TargetRef) (*sends.Send, error)
}

// Matcher evaluates targeting rules against members and leads.
type Matcher interface {
	MatchesMember(ctx context.Context, doc json.RawMessage, m *members.Member) bool
	MatchesLead(ctx context.Context, doc json.RawMessage, l *leads.Lead) bool
}

// DispatchEnqueuer hands freshly due sends to the dispatcher.
type DispatchEnqueuer interface {
	EnqueueDispatch(ctx context.Context, sendIDs []uuid.UUID) error
}

// Scheduler advances playbook sequences: it computes each enabled
// playbook's audience, creates queued sends for due steps, and enqueues
// them for dispatch. Safe to run concurrently; the sends store's
// uniqueness guarantee makes overlapping ticks converge on one send per
// (playbook, step, target).
type Scheduler struct {
	playbooks PlaybookLister
	leads     LeadLister
	members   MemberLister
	sends     SendStore
	matcher   Matcher
	dispatch  DispatchEnqueuer
	logger    *logging.Logger
	now       func() time.Time
}

// New constructs a Scheduler. All collaborators are required except
// dispatch, which may be nil when no dispatcher is wired (sends are
// still created and picked up by the auto-dispatch sweep).
func New(
	playbookStore PlaybookLister,
	leadStore LeadLister,
	memberStore MemberLister,
	sendStore SendStore,
	matcher Matcher,
	dispatch DispatchEnqueuer,
	logger *logging.Logger,
) *Scheduler {
	if playbookStore == nil {
		panic("scheduler: playbook store required")
	}
	if leadStore == nil {
		panic("scheduler: lead store required")
	}
	if memberStore == nil {
		panic("scheduler: member store required")
	}
	if sendStore == nil {
		panic("scheduler: send store required")
	}
	if matcher == nil {
		panic("scheduler: matcher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		playbooks: playbookStore,
		leads:     leadStore,
		members:   memberStore,
		sends:     sendStore,
		matcher:   matcher,
		dispatch:  dispatch,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock. Returns the receiver for chaining.
func (s *Scheduler) WithNow(now func() time.Time) *Scheduler {
	if now != nil {
		s.now = now
	}
	return s
}

// RunTick evaluates every enabled playbook for a company, or for all
// companies when companyID is empty. Per-playbook failures are logged
// and do not abort the tick. Returns how many sends were scheduled.
func (s *Scheduler) RunTick(ctx context.Context, companyID string) (int, error) {
	books, err := s.playbooks.ListEnabled(ctx, companyID)
	if err != nil {
		return 0, fmt.Errorf("scheduler: list enabled playbooks: %w", err)
	}
	if len(books) == 0 {
		return 0, nil
	}

	total := 0
	var due []uuid.UUID
	for i := range books {
		scheduled, dueIDs, err := s.evaluatePlaybook(ctx, &books[i])
		if err != nil {
			s.logger.Error("playbook evaluation failed",
				"playbook_id", books[i].ID,
				"company_id", books[i].CompanyID,
				"error", err,
			)
			continue
		}
		total += scheduled
		due = append(due, dueIDs...)
	}

	if len(due) > 0 && s.dispatch != nil {
		if err := s.dispatch.EnqueueDispatch(ctx, due); err != nil {
			s.logger.Error("failed to enqueue dispatch batch", "count", len(due), "error", err)
		}
	}

	if total > 0 {
		s.logger.Info("scheduler tick complete", "company_id", companyID, "scheduled", total)
	}
	return total, nil
}

func (s *Scheduler) evaluatePlaybook(ctx context.Context, p *playbooks.Playbook) (int, []uuid.UUID, error) {
	if len(p.Steps) == 0 {
		return 0, nil, nil
	}

	scheduled := 0
	var due []uuid.UUID

	switch p.Type {
	case playbooks.TypeNurture:
		audience, err := s.leads.ListByCompany(ctx, p.CompanyID)
		if err != nil {
			return 0, nil, err
		}
		for i := range audience {
			lead := &audience[i]
			if !s.matcher.MatchesLead(ctx, p.TargetRules, lead) {
				continue
			}
			n, ids := s.advanceTarget(ctx, p, sends.LeadTarget(lead.ID), render.LeadVars(lead))
			scheduled += n
			due = append(due, ids...)
		}
	case playbooks.TypeUpsell, playbooks.TypeChurnSave:
		audience, err := s.members.ListWithMemberships(ctx, p.CompanyID)
		if err != nil {
			return 0, nil, err
		}
		for i := range audience {
			member := &audience[i]
			if !s.matcher.MatchesMember(ctx, p.TargetRules, member) {
				continue
			}
			n, ids := s.advanceTarget(ctx, p, sends.MemberTarget(member.ID), render.MemberVars(member))
			scheduled += n
			due = append(due, ids...)
		}
	default:
		s.logger.Warn("skipping playbook with unknown type", "playbook_id", p.ID, "type", p.Type)
	}

	return scheduled, due, nil
}

// advanceTarget walks the playbook's steps in order for one target and
// creates whichever sends are due. Step 1 is due on entry; step k>1
// becomes due delay_minutes after step k-1 was sent. The walk stops at
// the first step that cannot fire yet.
func (s *Scheduler) advanceTarget(ctx context.Context, p *playbooks.Playbook, target sends.TargetRef, vars map[string]string) (int, []uuid.UUID) {
	now := s.now()
	scheduled := 0
	var due []uuid.UUID

	for i := range p.Steps {
		step := &p.Steps[i]

		var scheduleAt time.Time
		if i == 0 {
			scheduleAt = now
		} else {
			prev := p.StepBefore(step.Order)
			if prev == nil {
				s.logger.Warn("step sequence has a gap",
					"playbook_id", p.ID,
					"step_order", step.Order,
				)
				break
			}
			prevSend, err := s.sends.FindStepSend(ctx, p.ID, prev.ID, target)
			if err != nil {
				if !errors.Is(err, sends.ErrSendNotFound) {
					s.logger.Error("failed to load previous step send",
						"playbook_id", p.ID,
						"step_order", step.Order,
						"error", err,
					)
				}
				break
			}
			if prevSend.Status != sends.StatusSent || prevSend.SentAt == nil {
				break
			}
			scheduleAt = prevSend.SentAt.Add(time.Duration(step.DelayMinutes) * time.Minute)
			if scheduleAt.After(now) {
				break
			}
		}

		send := &sends.Send{
			CompanyID:    p.CompanyID,
			PlaybookID:   p.ID,
			StepID:       step.ID,
			MemberID:     target.MemberID,
			LeadID:       target.LeadID,
			Channel:      step.Channel,
			Content:      render.Render(step.Template.Body, vars),
			CTALabel:     step.Template.CTALabel,
			CTAPath:      step.Template.CTAPath,
			ScheduledFor: scheduleAt,
		}
		inserted, err := s.sends.CreateQueued(ctx, send)
		if err != nil {
			s.logger.Error("failed to create queued send",
				"playbook_id", p.ID,
				"step_order", step.Order,
				"error", err,
			)
			break
		}
		if inserted {
			scheduled++
			if !send.ScheduledFor.After(now) {
				due = append(due, send.ID)
			}
		}
		// A freshly queued step will not have been sent, so deeper
		// steps cannot be due within this tick.
	}

	return scheduled, due
}

// PreviewAudience counts how many targets a rule document currently
// matches, without creating any sends.
func (s *Scheduler) PreviewAudience(ctx context.Context, companyID, playbookType string, rules json.RawMessage) (int, error) {
	count := 0
	switch playbookType {
	case playbooks.TypeNurture:
		audience, err := s.leads.ListByCompany(ctx, companyID)
		if err != nil {
			return 0, fmt.Errorf("scheduler: preview audience: %w", err)
		}
		for i := range audience {
			if s.matcher.MatchesLead(ctx, rules, &audience[i]) {
				count++
			}
		}
	case playbooks.TypeUpsell, playbooks.TypeChurnSave:
		audience, err := s.members.ListWithMemberships(ctx, companyID)
		if err != nil {
			return 0, fmt.Errorf("scheduler: preview audience: %w", err)
		}
		for i := range audience {
			if s.matcher.MatchesMember(ctx, rules, &audience[i]) {
				count++
			}
		}
	default:
		return 0, fmt.Errorf("scheduler: unknown playbook type %q", playbookType)
	}
	return count, nil
}
