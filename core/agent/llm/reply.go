package llm

import (
	"context"
	"fmt"

	"replyflow_server/core/port/out"
)

// ComposeReply drafts a reply body for an inbound email using the tenant's
// automation settings (tone, business purpose, target length).
func (c *Client) ComposeReply(ctx context.Context, in *out.DraftInput) (string, error) {
	tone := in.Tone
	if tone == "" {
		tone = "professional"
	}
	length := string(in.ReplyLength)
	if length == "" {
		length = "medium"
	}

	systemPrompt := fmt.Sprintf(`You are an email reply assistant answering on behalf of a business.

Business: %s
Tone: %s
Length: %s (short: 1-2 sentences, medium: 3-5 sentences, long: detailed response)

Write a natural, contextually appropriate reply. Do not include a subject line,
email headers, or a signature. Do not invent order numbers, prices, or policies
that are not in the original email. Only output the reply body.`, in.Purpose, tone, length)

	from := in.FromName
	if from == "" {
		from = "the customer"
	}
	userPrompt := fmt.Sprintf("Original email from %s:\nSubject: %s\n\n%s\n\nGenerate a reply:",
		from, in.Subject, truncateBody(in.Body, 2000))

	reply, err := c.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", err
	}
	reply = cleanResponse(reply)
	if reply == "" {
		return "", fmt.Errorf("model returned empty reply")
	}
	return reply, nil
}
