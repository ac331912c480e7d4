package segment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Predicate is one node of a compiled targeting-rule tree. Nodes are
// AND/OR combinators or leaf predicates (range, set-membership,
// capability, date-bound). A nil Predicate matches everything.
type Predicate interface {
	evaluate(ctx context.Context, e *Evaluator, t *target) (bool, error)
}

// target is the snapshot a rule tree is evaluated against. Exactly one
// of membership/lead context is populated; predicates that reference the
// absent relation are vacuously true.
type target struct {
	externalUserID string
	createdAt      time.Time
	hasMembership  bool
	tenureDays     int
	status         string
	planID         string
	source         string
	contactType    string
}

type andNode []Predicate

func (n andNode) evaluate(ctx context.Context, e *Evaluator, t *target) (bool, error) {
	for _, p := range n {
		ok, err := p.evaluate(ctx, e, t)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

type orNode []Predicate

func (n orNode) evaluate(ctx context.Context, e *Evaluator, t *target) (bool, error) {
	if len(n) == 0 {
		return true, nil
	}
	for _, p := range n {
		ok, err := p.evaluate(ctx, e, t)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// tenureRange bounds whole days since the primary membership started.
type tenureRange struct {
	gte *int
	lte *int
}

func (p tenureRange) evaluate(_ context.Context, _ *Evaluator, t *target) (bool, error) {
	if !t.hasMembership {
		return true, nil
	}
	if p.gte != nil && t.tenureDays < *p.gte {
		return false, nil
	}
	if p.lte != nil && t.tenureDays > *p.lte {
		return false, nil
	}
	return true, nil
}

// setMembership checks a string field against an allowed set.
type setMembership struct {
	field  string
	values []string
}

const (
	fieldStatus      = "status"
	fieldSource      = "source"
	fieldContactType = "contactType"
)

func (p setMembership) evaluate(_ context.Context, _ *Evaluator, t *target) (bool, error) {
	var actual string
	switch p.field {
	case fieldStatus:
		if !t.hasMembership {
			return true, nil
		}
		actual = t.status
	case fieldSource:
		actual = t.source
	case fieldContactType:
		actual = t.contactType
	default:
		return false, fmt.Errorf("segment: unknown set field %q", p.field)
	}
	for _, v := range p.values {
		if v == actual {
			return true, nil
		}
	}
	return false, nil
}

// planFilter applies eq/ne/in/notIn against the primary membership plan.
type planFilter struct {
	eq    string
	ne    string
	in    []string
	notIn []string
}

func (p planFilter) evaluate(_ context.Context, _ *Evaluator, t *target) (bool, error) {
	if !t.hasMembership {
		return true, nil
	}
	if p.eq != "" && t.planID != p.eq {
		return false, nil
	}
	if p.ne != "" && t.planID == p.ne {
		return false, nil
	}
	if len(p.in) > 0 {
		found := false
		for _, v := range p.in {
			if v == t.planID {
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	for _, v := range p.notIn {
		if v == t.planID {
			return false, nil
		}
	}
	return true, nil
}

// capability performs one external access check and compares the result.
type capability struct {
	experienceID string
	hasAccess    bool
}

func (p capability) evaluate(ctx context.Context, e *Evaluator, t *target) (bool, error) {
	if t.externalUserID == "" {
		return true, nil
	}
	if e.access == nil {
		return false, errors.New("segment: no access checker configured")
	}
	got, err := e.access.HasAccess(ctx, t.externalUserID, p.experienceID)
	if err != nil {
		return false, fmt.Errorf("segment: access check: %w", err)
	}
	return got == p.hasAccess, nil
}

// dateBound restricts the target's creation time.
type dateBound struct {
	after  *time.Time
	before *time.Time
}

func (p dateBound) evaluate(_ context.Context, _ *Evaluator, t *target) (bool, error) {
	if p.after != nil && t.createdAt.Before(*p.after) {
		return false, nil
	}
	if p.before != nil && t.createdAt.After(*p.before) {
		return false, nil
	}
	return true, nil
}

// document is the stored rule shape. The legacy flat fields are ANDed;
// "and"/"or" hold nested documents for composed rules.
type document struct {
	And []json.RawMessage `json:"and"`
	Or  []json.RawMessage `json:"or"`

	Tenure *struct {
		GTE *int `json:"gte"`
		LTE *int `json:"lte"`
	} `json:"tenure"`
	Status []string `json:"status"`
	PlanID *struct {
		Eq    string   `json:"eq"`
		Ne    string   `json:"ne"`
		In    []string `json:"in"`
		NotIn []string `json:"notIn"`
	} `json:"planId"`
	ExperienceAccess *struct {
		ExperienceID string `json:"experienceId"`
		HasAccess    bool   `json:"hasAccess"`
	} `json:"experienceAccess"`
	Source        []string   `json:"source"`
	ContactType   []string   `json:"contactType"`
	CreatedAfter  *time.Time `json:"createdAfter"`
	CreatedBefore *time.Time `json:"createdBefore"`
}

// ParseRules compiles a stored rule document into a predicate tree.
// Empty input compiles to nil, which matches everything.
func ParseRules(doc []byte) (Predicate, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil, nil
	}
	var d document
	if err := json.Unmarshal(trimmed, &d); err != nil {
		return nil, fmt.Errorf("segment: parse rules: %w", err)
	}
	return compile(&d)
}

func compile(d *document) (Predicate, error) {
	var preds andNode

	for _, raw := range d.And {
		sub, err := ParseRules(raw)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			preds = append(preds, sub)
		}
	}
	if len(d.Or) > 0 {
		var alts orNode
		for _, raw := range d.Or {
			sub, err := ParseRules(raw)
			if err != nil {
				return nil, err
			}
			if sub != nil {
				alts = append(alts, sub)
			}
		}
		if len(alts) > 0 {
			preds = append(preds, alts)
		}
	}

	if d.Tenure != nil {
		preds = append(preds, tenureRange{gte: d.Tenure.GTE, lte: d.Tenure.LTE})
	}
	if len(d.Status) > 0 {
		preds = append(preds, setMembership{field: fieldStatus, values: d.Status})
	}
	if d.PlanID != nil {
		preds = append(preds, planFilter{eq: d.PlanID.Eq, ne: d.PlanID.Ne, in: d.PlanID.In, notIn: d.PlanID.NotIn})
	}
	if d.ExperienceAccess != nil {
		preds = append(preds, capability{experienceID: d.ExperienceAccess.ExperienceID, hasAccess: d.ExperienceAccess.HasAccess})
	}
	if len(d.Source) > 0 {
		preds = append(preds, setMembership{field: fieldSource, values: d.Source})
	}
	if len(d.ContactType) > 0 {
		preds = append(preds, setMembership{field: fieldContactType, values: d.ContactType})
	}
	if d.CreatedAfter != nil || d.CreatedBefore != nil {
		preds = append(preds, dateBound{after: d.CreatedAfter, before: d.CreatedBefore})
	}

	if len(preds) == 0 {
		return nil, nil
	}
	return preds, nil
}
