// Package classify assigns an intent category to inbound messages. The model
// call goes through an injected classifier port; fallback and the safety
// override are local so they stay testable without network access.
package classify

import (
	"context"

	"replyflow_server/core/domain"
	"replyflow_server/core/port/out"
	"replyflow_server/pkg/logger"
)

// Service wraps the inference classifier with validation, the fail-safe
// default, and the safety override.
type Service struct {
	classifier out.IntentClassifier
	log        *logger.Logger
}

// NewService creates a new classification service.
func NewService(classifier out.IntentClassifier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{classifier: classifier, log: log}
}

// Classify returns the intent category for a message. It never fails: an
// inference error or an out-of-taxonomy token falls back to requires_human so
// no message loses its categorization.
func (s *Service) Classify(ctx context.Context, subject, body, tenantContext string) domain.IntentCategory {
	category := domain.CategoryRequiresHuman

	raw, err := s.classifier.ClassifyIntent(ctx, subject, body, tenantContext)
	if err != nil {
		s.log.WithError(err).Warn("intent classification failed, routing to human")
	} else if parsed, ok := domain.ParseIntentCategory(raw); ok {
		category = parsed
	} else {
		s.log.WithField("token", raw).Warn("classifier returned out-of-taxonomy token, routing to human")
	}

	// Override applies after the model call, on content, not on the label.
	if category != domain.CategoryRequiresHuman && RequiresHuman(subject, body) {
		s.log.WithField("model_category", string(category)).Info("safety override applied")
		return domain.CategoryRequiresHuman
	}

	return category
}
