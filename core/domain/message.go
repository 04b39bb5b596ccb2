package domain

import "time"

// =============================================================================
// Intent taxonomy
// =============================================================================

// IntentCategory is one value of the closed classification taxonomy.
type IntentCategory string

const (
	CategoryGeneralQuery   IntentCategory = "general_query"
	CategoryPricing        IntentCategory = "pricing"
	CategoryTechnicalIssue IntentCategory = "technical_issue"
	CategoryComplaint      IntentCategory = "complaint"
	CategoryRefundRequest  IntentCategory = "refund_request"
	CategoryBillingIssue   IntentCategory = "billing_issue"
	CategoryAccountAccess  IntentCategory = "account_access"
	CategoryOrderStatus    IntentCategory = "order_status"
	CategorySpam           IntentCategory = "spam"
	CategorySalesLead      IntentCategory = "sales_lead"
	CategoryRequiresHuman  IntentCategory = "requires_human"
)

// AllCategories lists the taxonomy in a stable order (used for prompts and
// validation).
var AllCategories = []IntentCategory{
	CategoryGeneralQuery,
	CategoryPricing,
	CategoryTechnicalIssue,
	CategoryComplaint,
	CategoryRefundRequest,
	CategoryBillingIssue,
	CategoryAccountAccess,
	CategoryOrderStatus,
	CategorySpam,
	CategorySalesLead,
	CategoryRequiresHuman,
}

// ParseIntentCategory validates a model-returned token against the taxonomy.
func ParseIntentCategory(s string) (IntentCategory, bool) {
	c := IntentCategory(s)
	for _, known := range AllCategories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

// =============================================================================
// Inbound message
// =============================================================================

// RawMessage is a message as listed by the mailbox fetcher, before
// deduplication and classification.
type RawMessage struct {
	UID        uint32
	MessageID  string // RFC 5322 Message-Id header, may be empty
	From       string
	FromName   string
	Subject    string
	TextBody   string
	HTMLBody   string
	ReceivedAt time.Time
}

// InboundMessage is an ingested message. Immutable after insert except for
// the intent/processed advancement.
type InboundMessage struct {
	ID          int64          `json:"id"`
	TenantID    int64          `json:"tenant_id"`
	MailboxID   int64          `json:"mailbox_id"`
	ExternalUID uint32         `json:"external_uid"`
	MessageID   string         `json:"message_id,omitempty"`
	FromEmail   string         `json:"from_email"`
	FromName    string         `json:"from_name,omitempty"`
	Subject     string         `json:"subject"`
	Body        string         `json:"body"`
	ReceivedAt  time.Time      `json:"received_at"`
	Intent      IntentCategory `json:"intent,omitempty"`
	Processed   bool           `json:"processed"`

	// RoutedToHuman marks messages the decision engine (or a fallback path)
	// handed to the tenant's inbox instead of automating.
	RoutedToHuman bool `json:"routed_to_human"`

	CreatedAt time.Time `json:"created_at"`
}
