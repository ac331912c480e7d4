package playbooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/revenueangel/automation-engine/pkg/logging"
)

// defaultTemplates are the stock playbooks seeded for a new company.
// They are created disabled so the operator can review before turning them on.
func defaultTemplates() []Playbook {
	nurtureRules, _ := json.Marshal(map[string]any{
		"source": []string{"store", "manual", "capture"},
	})
	upsellRules, _ := json.Marshal(map[string]any{
		"tenure": map[string]int{"gte": 14},
		"status": []string{"active"},
		"planId": map[string]string{"ne": "pro"},
	})
	churnRules, _ := json.Marshal(map[string]any{
		"status": []string{"past_due"},
	})

	return []Playbook{
		{
			Name:        "First Purchase - 3 Step Sequence",
			Description: "Convert leads into first-time customers with automated follow-ups",
			Type:        TypeNurture,
			TargetRules: nurtureRules,
			Steps: []Step{
				{
					Order: 1, DelayMinutes: 60, Channel: "push",
					Template: MessageTemplate{
						Name: "First Purchase - Step 1 (Reminder)", Tone: "friendly",
						Body:     "Hey {{first_name}}! You checked out our community earlier. Inside, you'll get instant access to exclusive content and all the tools you need to succeed. Ready to join?",
						CTALabel: "Join Now", CTAPath: "/offer/first-purchase",
					},
				},
				{
					Order: 2, DelayMinutes: 1440, Channel: "push",
					Template: MessageTemplate{
						Name: "First Purchase - Step 2 (Social Proof)", Tone: "friendly",
						Body:     "Hi {{first_name}}, over 500+ members are already inside learning and growing together. Don't wait - your spot is ready whenever you are.",
						CTALabel: "See What's Inside", CTAPath: "/offer/first-purchase",
					},
				},
				{
					Order: 3, DelayMinutes: 4320, Channel: "push",
					Template: MessageTemplate{
						Name: "First Purchase - Step 3 (Final Incentive)", Tone: "friendly",
						Body:     "{{first_name}}, this is your last chance! Join today and get your first month at 20% off. This offer expires in 24 hours.",
						CTALabel: "Claim Your Discount", CTAPath: "/offer/first-purchase-discount",
					},
				},
			},
		},
		{
			Name:        "Upgrade to Pro",
			Description: "Encourage engaged members to upgrade to a higher tier",
			Type:        TypeUpsell,
			TargetRules: upsellRules,
			Steps: []Step{
				{
					Order: 1, DelayMinutes: 0, Channel: "push",
					Template: MessageTemplate{
						Name: "Upgrade - Initial Pitch", Tone: "expert",
						Body:     "Hey {{first_name}}! We've noticed you're an active member on our {{plan_name}} plan. Our Pro tier gives you priority support, advanced tools and exclusive content. Want to check it out?",
						CTALabel: "See Pro Benefits", CTAPath: "/upgrade/pro",
					},
				},
				{
					Order: 2, DelayMinutes: 2880, Channel: "push",
					Template: MessageTemplate{
						Name: "Upgrade - Follow-up", Tone: "expert",
						Body:     "{{first_name}}, quick follow-up on upgrading to Pro! Your current {{plan_name}} plan is missing advanced analytics, coaching calls and early access to new features. Upgrade now and unlock everything.",
						CTALabel: "Upgrade Now", CTAPath: "/upgrade/pro",
					},
				},
			},
		},
		{
			Name:        "Payment Failed Recovery",
			Description: "Recover failed payments and prevent involuntary churn",
			Type:        TypeChurnSave,
			TargetRules: churnRules,
			Steps: []Step{
				{
					Order: 1, DelayMinutes: 0, Channel: "push",
					Template: MessageTemplate{
						Name: "Payment Failed - Immediate", Tone: "friendly",
						Body:     "Hi {{first_name}}, we noticed your recent payment didn't go through. Your access is still active for now, and you can fix this in a few seconds. Click below to update your payment method and we'll retry immediately.",
						CTALabel: "Update Payment", CTAPath: "/account/payment/retry",
					},
				},
				{
					Order: 2, DelayMinutes: 1440, Channel: "push",
					Template: MessageTemplate{
						Name: "Payment Failed - Downgrade Offer", Tone: "friendly",
						Body:     "Hey {{first_name}}, we still haven't been able to process your payment. If the current plan isn't working right now, we have options: downgrade, pause for up to 3 months, or update your payment method.",
						CTALabel: "See Options", CTAPath: "/account/payment/options",
					},
				},
			},
		},
	}
}

// EnsureDefaults seeds the stock playbooks for a company that has none yet.
// Safe to call repeatedly.
func (s *Store) EnsureDefaults(ctx context.Context, companyID string, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Default()
	}
	count, err := s.CountByCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, tmpl := range defaultTemplates() {
		p := tmpl
		p.CompanyID = companyID
		p.Enabled = false
		if err := s.Create(ctx, &p); err != nil {
			return fmt.Errorf("playbooks: seed %q: %w", p.Name, err)
		}
		logger.Info("seeded default playbook", "company_id", companyID, "name", p.Name)
	}
	return nil
}
