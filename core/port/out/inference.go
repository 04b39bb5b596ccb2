package out

import (
	"context"

	"replyflow_server/core/domain"
)

// IntentClassifier is the external text-inference collaborator for
// classification. It must return exactly one taxonomy token; validation and
// the safety override live in core/service/classify, not here.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, subject, body, tenantContext string) (string, error)
}

// DraftInput carries everything the reply composer needs.
type DraftInput struct {
	Subject     string
	Body        string
	FromName    string
	Tone        string
	Purpose     string
	ReplyLength domain.ReplyLength
}

// ReplyComposer is the external collaborator producing reply body text.
// Timeouts and malformed output are surfaced as errors; the caller falls
// back to routing the message to a human.
type ReplyComposer interface {
	ComposeReply(ctx context.Context, input *DraftInput) (string, error)
}
