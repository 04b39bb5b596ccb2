package mailbox

import (
	"strings"
	"testing"

	"replyflow_server/core/port/out"
)

func TestBuildMessage(t *testing.T) {
	raw := string(buildMessage(&out.OutboundMail{
		From:    "support@tenant.example",
		To:      "customer@example.com",
		Subject: "Re: Pricing",
		Body:    "First line.\nSecond line.",
	}))

	headers, body, ok := strings.Cut(raw, "\r\n\r\n")
	if !ok {
		t.Fatal("message has no header/body separator")
	}

	for _, want := range []string{
		"From: support@tenant.example",
		"To: customer@example.com",
		"Subject: Re: Pricing",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	} {
		if !strings.Contains(headers, want) {
			t.Errorf("headers missing %q", want)
		}
	}

	if strings.Contains(body, "First line.\nSecond") {
		t.Error("body line endings not normalized to CRLF")
	}
	if !strings.Contains(body, "First line.\r\nSecond line.") {
		t.Errorf("body = %q, want CRLF-separated lines", body)
	}
}
