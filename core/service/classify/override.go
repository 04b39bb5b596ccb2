package classify

import (
	"regexp"
	"strings"
)

// =============================================================================
// Safety override
// =============================================================================

// Messages touching money movement, cancellations, credentials, or one-time
// codes go to a human no matter what the model said.
var overridePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(refund|chargeback|wire transfer|bank (account|transfer)|iban|routing number)\b`),
	regexp.MustCompile(`(?i)\b(cancel(l?ing|l?ed|l?ation)?)\b.{0,40}\b(subscription|account|order|contract|plan)\b`),
	regexp.MustCompile(`(?i)\b(password|passphrase|credential|api key|secret key|private key)\b`),
	regexp.MustCompile(`(?i)\b(otp|one.?time (code|password)|verification code|2fa|two.?factor)\b`),
}

// RequiresHuman reports whether the subject or body matches a safety pattern.
func RequiresHuman(subject, body string) bool {
	text := subject + "\n" + body
	if strings.TrimSpace(text) == "" {
		return false
	}
	for _, p := range overridePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
