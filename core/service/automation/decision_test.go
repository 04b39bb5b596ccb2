package automation

import (
	"testing"

	"replyflow_server/core/domain"
)

func TestDecide(t *testing.T) {
	msg := &domain.InboundMessage{
		ID:        1,
		TenantID:  1,
		MailboxID: 1,
		FromEmail: "customer@example.com",
		FromName:  "Ada",
		Subject:   "Pro plan pricing",
		Body:      "How much is the pro plan for 10 seats?",
	}

	enabled := &domain.AutomationSettings{
		TenantID:         1,
		AutoReplyEnabled: true,
		Tone:             "friendly",
		Purpose:          "SaaS helpdesk",
		ReplyLength:      domain.ReplyLengthMedium,
	}
	restricted := &domain.AutomationSettings{
		TenantID:         1,
		AutoReplyEnabled: true,
		AllowedCategories: []domain.IntentCategory{
			domain.CategoryPricing,
			domain.CategorySalesLead,
		},
	}
	disabled := &domain.AutomationSettings{TenantID: 1, AutoReplyEnabled: false}

	tests := []struct {
		name     string
		category domain.IntentCategory
		settings *domain.AutomationSettings
		want     ActionKind
	}{
		{"spam is suppressed", domain.CategorySpam, enabled, ActionSuppress},
		{"spam is suppressed even when disabled", domain.CategorySpam, disabled, ActionSuppress},
		{"requires_human routes to human", domain.CategoryRequiresHuman, enabled, ActionRouteToHuman},
		{"disabled automation routes to human", domain.CategoryPricing, disabled, ActionRouteToHuman},
		{"nil settings route to human", domain.CategoryPricing, nil, ActionRouteToHuman},
		{"allowed category auto-replies", domain.CategoryPricing, restricted, ActionAutoReply},
		{"sales lead in allow-list auto-replies", domain.CategorySalesLead, restricted, ActionAutoReply},
		{"category outside allow-list routes to human", domain.CategoryComplaint, restricted, ActionRouteToHuman},
		{"empty allow-list permits everything", domain.CategoryOrderStatus, enabled, ActionAutoReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(msg, tt.category, tt.settings)
			if got.Kind != tt.want {
				t.Fatalf("Decide() = %v, want %v", got.Kind, tt.want)
			}
			if tt.want == ActionAutoReply {
				if got.Draft == nil {
					t.Fatal("Decide() returned AutoReply without a draft")
				}
				if got.Draft.Subject != msg.Subject || got.Draft.Body != msg.Body {
					t.Errorf("draft carries wrong message content: %+v", got.Draft)
				}
				if got.Draft.Tone != tt.settings.Tone || got.Draft.Purpose != tt.settings.Purpose {
					t.Errorf("draft carries wrong settings: %+v", got.Draft)
				}
			} else if got.Draft != nil {
				t.Errorf("Decide() = %v with unexpected draft", got.Kind)
			}
		})
	}
}
