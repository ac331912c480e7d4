package segment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/revenueangel/automation-engine/internal/leads"
	"github.com/revenueangel/automation-engine/internal/members"
	"github.com/revenueangel/automation-engine/pkg/logging"
)

// AccessChecker verifies whether a platform user can reach a resource.
type AccessChecker interface {
	HasAccess(ctx context.Context, userID, resourceID string) (bool, error)
}

// Evaluator matches targeting rules against member and lead snapshots.
// Evaluation never fails into the caller: malformed rules and checker
// errors are logged and treated as non-match.
type Evaluator struct {
	access AccessChecker
	logger *logging.Logger
	now    func() time.Time
}

func NewEvaluator(access AccessChecker, logger *logging.Logger) *Evaluator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Evaluator{
		access: access,
		logger: logger,
		now:    time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (e *Evaluator) WithNow(now func() time.Time) *Evaluator {
	if now != nil {
		e.now = now
	}
	return e
}

// MatchesMember reports whether a member snapshot satisfies the rules.
func (e *Evaluator) MatchesMember(ctx context.Context, doc json.RawMessage, m *members.Member) bool {
	t := target{
		externalUserID: m.ExternalUserID,
		createdAt:      m.CreatedAt,
	}
	if primary := m.Primary(); primary != nil {
		t.hasMembership = true
		t.tenureDays = primary.TenureDays(e.now())
		t.status = primary.Status
		t.planID = primary.PlanID
	}
	return e.matches(ctx, doc, &t, "member", m.ID.String())
}

// MatchesLead reports whether a lead snapshot satisfies the rules.
func (e *Evaluator) MatchesLead(ctx context.Context, doc json.RawMessage, l *leads.Lead) bool {
	t := target{
		createdAt:   l.CreatedAt,
		source:      l.Source,
		contactType: l.ContactType,
	}
	return e.matches(ctx, doc, &t, "lead", l.ID.String())
}

func (e *Evaluator) matches(ctx context.Context, doc json.RawMessage, t *target, kind, id string) bool {
	pred, err := ParseRules(doc)
	if err != nil {
		e.logger.Error("targeting rules failed to parse", "error", err, "target_type", kind, "target_id", id)
		return false
	}
	if pred == nil {
		return true
	}
	ok, err := pred.evaluate(ctx, e, t)
	if err != nil {
		e.logger.Error("targeting rule evaluation failed", "error", err, "target_type", kind, "target_id", id)
		return false
	}
	return ok
}
