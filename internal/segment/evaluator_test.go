package segment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/revenueangel/automation-engine/internal/leads"
	"github.com/revenueangel/automation-engine/internal/members"
)

type fakeAccess struct {
	result bool
	err    error
	calls  int
}

func (f *fakeAccess) HasAccess(ctx context.Context, userID, resourceID string) (bool, error) {
	f.calls++
	return f.result, f.err
}

func memberWithTenure(days int) *members.Member {
	now := time.Now().UTC()
	return &members.Member{
		ID:             uuid.New(),
		CompanyID:      "biz_1",
		ExternalUserID: "user_1",
		CreatedAt:      now.AddDate(0, -6, 0),
		Memberships: []members.Membership{{
			ID:        uuid.New(),
			PlanID:    "basic",
			Status:    members.StatusActive,
			StartedAt: now.AddDate(0, 0, -days),
		}},
	}
}

func TestEmptyRulesMatchEveryone(t *testing.T) {
	e := NewEvaluator(nil, nil)
	m := memberWithTenure(3)
	l := &leads.Lead{ID: uuid.New(), Source: "capture", CreatedAt: time.Now()}

	for _, doc := range []json.RawMessage{nil, []byte(""), []byte("{}"), []byte("null")} {
		if !e.MatchesMember(context.Background(), doc, m) {
			t.Errorf("doc %q should match member", doc)
		}
		if !e.MatchesLead(context.Background(), doc, l) {
			t.Errorf("doc %q should match lead", doc)
		}
	}
}

func TestTenureRule(t *testing.T) {
	e := NewEvaluator(nil, nil)
	doc := json.RawMessage(`{"tenure":{"gte":14}}`)

	if !e.MatchesMember(context.Background(), doc, memberWithTenure(20)) {
		t.Error("member with 20 day tenure should match gte 14")
	}
	if e.MatchesMember(context.Background(), doc, memberWithTenure(5)) {
		t.Error("member with 5 day tenure should not match gte 14")
	}

	bounded := json.RawMessage(`{"tenure":{"gte":7,"lte":30}}`)
	if !e.MatchesMember(context.Background(), bounded, memberWithTenure(15)) {
		t.Error("member inside range should match")
	}
	if e.MatchesMember(context.Background(), bounded, memberWithTenure(45)) {
		t.Error("member past lte should not match")
	}
}

func TestTenureRuleVacuousWithoutMembership(t *testing.T) {
	e := NewEvaluator(nil, nil)
	m := &members.Member{ID: uuid.New(), ExternalUserID: "user_1", CreatedAt: time.Now()}
	doc := json.RawMessage(`{"tenure":{"gte":14},"status":["active"]}`)

	if !e.MatchesMember(context.Background(), doc, m) {
		t.Error("membership rules must be vacuously true when member has no memberships")
	}
}

func TestStatusAndPlanRules(t *testing.T) {
	e := NewEvaluator(nil, nil)
	m := memberWithTenure(20)

	cases := []struct {
		name string
		doc  string
		want bool
	}{
		{"status match", `{"status":["active","past_due"]}`, true},
		{"status miss", `{"status":["canceled"]}`, false},
		{"plan eq match", `{"planId":{"eq":"basic"}}`, true},
		{"plan eq miss", `{"planId":{"eq":"pro"}}`, false},
		{"plan ne filters out", `{"planId":{"ne":"basic"}}`, false},
		{"plan in", `{"planId":{"in":["basic","plus"]}}`, true},
		{"plan notIn", `{"planId":{"notIn":["basic"]}}`, false},
		{"combined all pass", `{"tenure":{"gte":14},"status":["active"],"planId":{"ne":"pro"}}`, true},
		{"combined one fails", `{"tenure":{"gte":14},"status":["active"],"planId":{"eq":"pro"}}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.MatchesMember(context.Background(), json.RawMessage(tc.doc), m); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLeadRules(t *testing.T) {
	e := NewEvaluator(nil, nil)
	l := &leads.Lead{
		ID:          uuid.New(),
		Source:      "capture",
		ContactType: "email",
		CreatedAt:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}

	cases := []struct {
		name string
		doc  string
		want bool
	}{
		{"source match", `{"source":["capture","manual"]}`, true},
		{"source miss", `{"source":["store"]}`, false},
		{"contact type match", `{"contactType":["email"]}`, true},
		{"created after pass", `{"createdAfter":"2026-07-01T00:00:00Z"}`, true},
		{"created after fail", `{"createdAfter":"2026-08-15T00:00:00Z"}`, false},
		{"created before fail", `{"createdBefore":"2026-07-01T00:00:00Z"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.MatchesLead(context.Background(), json.RawMessage(tc.doc), l); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExperienceAccessRule(t *testing.T) {
	access := &fakeAccess{result: true}
	e := NewEvaluator(access, nil)
	m := memberWithTenure(20)
	doc := json.RawMessage(`{"experienceAccess":{"experienceId":"exp_1","hasAccess":true}}`)

	if !e.MatchesMember(context.Background(), doc, m) {
		t.Error("member with access should match hasAccess:true")
	}
	if access.calls != 1 {
		t.Errorf("expected one access call, got %d", access.calls)
	}

	access.result = false
	if e.MatchesMember(context.Background(), doc, m) {
		t.Error("member without access should not match hasAccess:true")
	}
}

func TestAccessCheckerErrorFailsClosed(t *testing.T) {
	e := NewEvaluator(&fakeAccess{err: errors.New("platform down")}, nil)
	m := memberWithTenure(20)
	doc := json.RawMessage(`{"experienceAccess":{"experienceId":"exp_1","hasAccess":true}}`)

	if e.MatchesMember(context.Background(), doc, m) {
		t.Error("checker error must evaluate as non-match")
	}
}

func TestMalformedRulesFailClosed(t *testing.T) {
	e := NewEvaluator(nil, nil)
	m := memberWithTenure(20)

	for _, doc := range []string{`{`, `[1,2]`, `{"tenure":"young"}`} {
		if e.MatchesMember(context.Background(), json.RawMessage(doc), m) {
			t.Errorf("malformed doc %q must not match", doc)
		}
	}
}

func TestOrCombinator(t *testing.T) {
	e := NewEvaluator(nil, nil)
	doc := json.RawMessage(`{"or":[{"planId":{"eq":"pro"}},{"tenure":{"gte":14}}]}`)

	if !e.MatchesMember(context.Background(), doc, memberWithTenure(20)) {
		t.Error("second alternative should satisfy the or node")
	}
	if e.MatchesMember(context.Background(), doc, memberWithTenure(3)) {
		t.Error("neither alternative holds, should not match")
	}
}
