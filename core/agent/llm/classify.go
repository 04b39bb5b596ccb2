package llm

import (
	"context"
	"fmt"
	"strings"

	"replyflow_server/core/domain"
)

const classifySystemPrompt = `You are an email intent classifier for a customer support inbox.
Classify the email into exactly one of these categories:

- general_query: general questions about the product or company
- pricing: questions about plans, prices, discounts
- technical_issue: something is broken or not working
- complaint: dissatisfaction without a concrete request
- refund_request: asking for money back
- billing_issue: wrong charge, invoice problem, payment failure
- account_access: login, password, locked account
- order_status: where is my order, delivery questions
- spam: unsolicited marketing, phishing, nonsense
- sales_lead: interest in buying, partnership, demo request
- requires_human: anything sensitive, legal, threatening, or unclear

Output only the category name, nothing else.`

// ClassifyIntent classifies an inbound email into the intent taxonomy.
// tenantContext carries optional business context to disambiguate domain terms.
func (c *Client) ClassifyIntent(ctx context.Context, subject, body, tenantContext string) (string, error) {
	systemPrompt := classifySystemPrompt
	if tenantContext != "" {
		systemPrompt += fmt.Sprintf("\n\nBusiness context:\n%s", tenantContext)
	}

	userPrompt := fmt.Sprintf("Subject: %s\n\nBody:\n%s", subject, truncateBody(body, 2000))

	resp, err := c.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}

	label := strings.ToLower(cleanResponse(resp))
	label = strings.Trim(label, `"'.`)
	if _, ok := domain.ParseIntentCategory(label); !ok {
		return "", fmt.Errorf("model returned unknown category %q", label)
	}

	return label, nil
}
