package domain

import (
	"testing"
	"time"
)

func TestRetryDelay(t *testing.T) {
	base := 15 * time.Second
	max := 10 * time.Minute

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 15 * time.Second}, // clamps to attempt 1
		{1, 15 * time.Second},
		{2, 30 * time.Second},
		{3, 60 * time.Second},
		{4, 2 * time.Minute},
		{7, 10 * time.Minute}, // 16m raw, capped
		{50, 10 * time.Minute},
	}

	for _, tt := range tests {
		if got := RetryDelay(tt.attempt, base, max); got != tt.want {
			t.Errorf("RetryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExhausted(t *testing.T) {
	job := &DispatchJob{Attempts: 4, MaxAttempts: 5}
	if job.Exhausted() {
		t.Error("job with attempts left reported exhausted")
	}
	job.Attempts = 5
	if !job.Exhausted() {
		t.Error("job at max attempts not reported exhausted")
	}
}

func TestParseTLSMode(t *testing.T) {
	tests := []struct {
		in   string
		want TLSMode
	}{
		{"strict", TLSStrict},
		{"insecure", TLSInsecure},
		{"starttls", TLSStartTLS},
		{"", TLSStrict},
		{"tls", TLSStrict},
		{"STARTTLS", TLSStrict},
	}

	for _, tt := range tests {
		if got := ParseTLSMode(tt.in); got != tt.want {
			t.Errorf("ParseTLSMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSyncable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		mb   Mailbox
		want bool
	}{
		{"active", Mailbox{Active: true}, true},
		{"inactive", Mailbox{Active: false}, false},
		{"soft deleted", Mailbox{Active: true, DeletedAt: &past}, false},
		{"cooling down", Mailbox{Active: true, CooldownUntil: &future}, false},
		{"cooldown expired", Mailbox{Active: true, CooldownUntil: &past}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mb.Syncable(now); got != tt.want {
				t.Errorf("Syncable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseIntentCategory(t *testing.T) {
	for _, c := range AllCategories {
		got, ok := ParseIntentCategory(string(c))
		if !ok || got != c {
			t.Errorf("ParseIntentCategory(%q) = %q, %v", c, got, ok)
		}
	}

	for _, bad := range []string{"", "urgent", "REFUND_REQUEST", "pricing "} {
		if _, ok := ParseIntentCategory(bad); ok {
			t.Errorf("ParseIntentCategory(%q) accepted", bad)
		}
	}
}

func TestAllows(t *testing.T) {
	open := &AutomationSettings{}
	if !open.Allows(CategoryComplaint) {
		t.Error("empty allow-list should permit every category")
	}

	restricted := &AutomationSettings{
		AllowedCategories: []IntentCategory{CategoryPricing, CategorySalesLead},
	}
	if !restricted.Allows(CategoryPricing) {
		t.Error("listed category rejected")
	}
	if restricted.Allows(CategoryComplaint) {
		t.Error("unlisted category accepted")
	}
}

func TestDefaultAutomationSettings(t *testing.T) {
	s := DefaultAutomationSettings(7)
	if s.TenantID != 7 {
		t.Errorf("TenantID = %d", s.TenantID)
	}
	if s.AutoReplyEnabled {
		t.Error("defaults must not enable auto-reply")
	}
}
