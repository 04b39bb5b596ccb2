package domain

import "time"

// =============================================================================
// Mailbox - connection descriptor for one tenant inbox
// =============================================================================

// AuthMethod selects how the fetcher/sender authenticates against the
// mail server.
type AuthMethod string

const (
	AuthPassword AuthMethod = "password"
	AuthXOAuth2  AuthMethod = "xoauth2"
)

// TLSMode controls transport security per mailbox. Some deployments run
// self-signed mail servers and need relaxed certificate validation.
type TLSMode string

const (
	TLSStrict   TLSMode = "strict"
	TLSInsecure TLSMode = "insecure"
	TLSStartTLS TLSMode = "starttls"
)

// ParseTLSMode maps a stored value onto the enum. Anything unrecognized
// degrades to strict so a bad row can never weaken transport security.
func ParseTLSMode(s string) TLSMode {
	switch TLSMode(s) {
	case TLSStrict, TLSInsecure, TLSStartTLS:
		return TLSMode(s)
	default:
		return TLSStrict
	}
}

// Mailbox holds the connection parameters for one tenant mailbox. The secret
// is stored encrypted (AES-256-GCM) and is only decrypted inside the
// fetch/send call scope.
type Mailbox struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Address  string `json:"address"`

	IMAPHost string `json:"imap_host"`
	IMAPPort int    `json:"imap_port"`
	SMTPHost string `json:"smtp_host"`
	SMTPPort int    `json:"smtp_port"`
	Folder   string `json:"folder"`

	Username   string     `json:"username"`
	SecretEnc  string     `json:"-"`
	AuthMethod AuthMethod `json:"auth_method"`
	TLSMode    TLSMode    `json:"tls_mode"`

	Active    bool       `json:"active"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// LastUID is the watermark: the highest IMAP UID already ingested.
	// It only moves forward, and only after messages were persisted.
	LastUID uint32 `json:"last_uid"`

	// Cooldown bookkeeping for repeatedly failing connections.
	FailureCount  int        `json:"failure_count"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`

	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// InCooldown reports whether the mailbox should be skipped at now.
func (m *Mailbox) InCooldown(now time.Time) bool {
	return m.CooldownUntil != nil && now.Before(*m.CooldownUntil)
}

// Syncable reports whether the scheduler should include this mailbox in a pass.
func (m *Mailbox) Syncable(now time.Time) bool {
	return m.Active && m.DeletedAt == nil && !m.InCooldown(now)
}

// MailboxSecret is the decrypted credential handed to the fetcher/sender.
// It must never be persisted or logged; callers keep it scoped to one call.
type MailboxSecret struct {
	Username string
	Password string // password, or OAuth2 refresh token for AuthXOAuth2
}
