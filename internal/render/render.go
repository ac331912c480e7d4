package render

import (
	"strings"

	"github.com/revenueangel/automation-engine/internal/leads"
	"github.com/revenueangel/automation-engine/internal/members"
)

// defaultName is substituted when a target has no usable first name.
const defaultName = "there"

// MemberVars builds the substitution map for a member target.
func MemberVars(m *members.Member) map[string]string {
	vars := map[string]string{
		"first_name": defaultName,
		"email":      "",
		"plan_name":  "member",
	}
	if m == nil {
		return vars
	}
	if m.FirstName != "" {
		vars["first_name"] = m.FirstName
	}
	vars["email"] = m.Email
	if primary := m.Primary(); primary != nil && primary.PlanID != "" {
		vars["plan_name"] = primary.PlanID
	}
	return vars
}

// LeadVars builds the substitution map for a lead target.
func LeadVars(l *leads.Lead) map[string]string {
	vars := map[string]string{
		"first_name": defaultName,
		"contact":    "",
	}
	if l == nil {
		return vars
	}
	if l.Name != "" {
		vars["first_name"] = l.Name
	}
	vars["contact"] = l.Contact
	return vars
}

// Render substitutes {{key}} placeholders in body with values from vars.
// Unknown placeholders are left untouched. Deterministic, no I/O.
func Render(body string, vars map[string]string) string {
	out := body
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}
