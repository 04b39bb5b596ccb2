package domain

import "time"

// Tenant is the identity boundary for mailboxes, settings, messages and jobs.
// Tenants are created by the signup flow (external) and never shared.
type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReplyLength is the tenant's preferred reply verbosity.
type ReplyLength string

const (
	ReplyLengthShort  ReplyLength = "short"
	ReplyLengthMedium ReplyLength = "medium"
	ReplyLengthLong   ReplyLength = "long"
)

// AutomationSettings is the per-tenant automation policy. The pipeline only
// reads it; writes happen through the tenant configuration surface (external).
type AutomationSettings struct {
	TenantID         int64       `json:"tenant_id"`
	AutoReplyEnabled bool        `json:"auto_reply_enabled"`
	Tone             string      `json:"tone"`
	Purpose          string      `json:"purpose"`
	ReplyLength      ReplyLength `json:"reply_length"`

	// AllowedCategories restricts which intents may be auto-replied.
	// Empty means every auto-reply-eligible category is allowed.
	AllowedCategories []IntentCategory `json:"allowed_categories"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Allows reports whether the allow-list permits auto-replying to category.
func (s *AutomationSettings) Allows(category IntentCategory) bool {
	if len(s.AllowedCategories) == 0 {
		return true
	}
	for _, c := range s.AllowedCategories {
		if c == category {
			return true
		}
	}
	return false
}

// DefaultAutomationSettings returns the policy applied to tenants that have
// not configured automation yet: everything routes to a human.
func DefaultAutomationSettings(tenantID int64) *AutomationSettings {
	return &AutomationSettings{
		TenantID:         tenantID,
		AutoReplyEnabled: false,
		ReplyLength:      ReplyLengthMedium,
	}
}
