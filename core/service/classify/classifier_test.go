package classify

import (
	"context"
	"errors"
	"testing"

	"replyflow_server/core/domain"
)

// stubClassifier returns a fixed token or error.
type stubClassifier struct {
	token string
	err   error
	calls int
}

func (s *stubClassifier) ClassifyIntent(ctx context.Context, subject, body, tenantContext string) (string, error) {
	s.calls++
	return s.token, s.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		err     error
		subject string
		body    string
		want    domain.IntentCategory
	}{
		{
			name:    "model token passes through",
			token:   "pricing",
			subject: "How much is the pro plan?",
			body:    "Hi, what does the pro plan cost per seat?",
			want:    domain.CategoryPricing,
		},
		{
			name:    "inference error falls back to requires_human",
			err:     errors.New("upstream timeout"),
			subject: "Question",
			body:    "Quick question about your product.",
			want:    domain.CategoryRequiresHuman,
		},
		{
			name:    "out-of-taxonomy token falls back to requires_human",
			token:   "customer_happiness",
			subject: "Hello",
			body:    "Just saying hi.",
			want:    domain.CategoryRequiresHuman,
		},
		{
			name:    "refund content overrides model label",
			token:   "general_query",
			subject: "Question about my payment",
			body:    "I would like a refund for last month's invoice.",
			want:    domain.CategoryRequiresHuman,
		},
		{
			name:    "otp content overrides model label",
			token:   "technical_issue",
			subject: "Login help",
			body:    "The verification code you sent never arrived.",
			want:    domain.CategoryRequiresHuman,
		},
		{
			name:    "cancellation content overrides model label",
			token:   "general_query",
			subject: "Cancelling my subscription",
			body:    "Please cancel my subscription effective today.",
			want:    domain.CategoryRequiresHuman,
		},
		{
			name:    "spam label survives when content is clean",
			token:   "spam",
			subject: "You won a prize!!!",
			body:    "Click here to claim your free prize now.",
			want:    domain.CategorySpam,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&stubClassifier{token: tt.token, err: tt.err}, nil)
			got := svc.Classify(context.Background(), tt.subject, tt.body, "")
			if got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequiresHuman(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		body    string
		want    bool
	}{
		{"plain question", "Product question", "Does it support CSV export?", false},
		{"empty message", "", "", false},
		{"chargeback mention", "Dispute", "I filed a chargeback with my bank.", true},
		{"password in body", "Help", "I forgot my password and cannot log in.", true},
		{"api key leak", "Security", "I accidentally posted my API key publicly.", true},
		{"cancel order", "Order 4411", "I want to cancel my order from yesterday.", true},
		{"cancel without object", "Meeting", "We had to cancel Friday's call.", false},
		{"two factor code", "2FA", "My 2FA app shows the wrong codes.", true},
		{"wire transfer", "Payment", "Can I pay by wire transfer to your bank account?", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiresHuman(tt.subject, tt.body); got != tt.want {
				t.Errorf("RequiresHuman(%q, %q) = %v, want %v", tt.subject, tt.body, got, tt.want)
			}
		})
	}
}
