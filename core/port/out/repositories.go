package out

import (
	"context"
	"time"

	"replyflow_server/core/domain"
)

// TenantRepository reads the tenant roster for scheduling.
type TenantRepository interface {
	ListActive(ctx context.Context) ([]*domain.Tenant, error)
	GetByID(ctx context.Context, id int64) (*domain.Tenant, error)
}

// MailboxRepository manages mailbox rows including the watermark and the
// failure/cooldown bookkeeping. Credentials come back encrypted; decryption
// happens in the credential store wrapper.
type MailboxRepository interface {
	ListActiveByTenant(ctx context.Context, tenantID int64) ([]*domain.Mailbox, error)
	GetByID(ctx context.Context, id int64) (*domain.Mailbox, error)

	// AdvanceWatermark moves last_uid forward to uid (never backward) and
	// stamps last_synced_at. Called strictly after message persistence.
	AdvanceWatermark(ctx context.Context, mailboxID int64, uid uint32) error

	// RecordFailure increments failure_count and sets cooldown_until.
	RecordFailure(ctx context.Context, mailboxID int64, until time.Time) error

	// ClearFailures resets failure_count and cooldown after a clean pass.
	ClearFailures(ctx context.Context, mailboxID int64) error
}

// MessageRepository persists inbound messages. InsertNew is the dedup
// ledger: rows violating the (mailbox_id, external_uid) uniqueness are
// silently skipped and only actually-inserted messages are returned.
type MessageRepository interface {
	InsertNew(ctx context.Context, msgs []*domain.InboundMessage) ([]*domain.InboundMessage, error)
	SetIntent(ctx context.Context, messageID int64, intent domain.IntentCategory) error
	MarkProcessed(ctx context.Context, messageID int64, routedToHuman bool) error
	// ListUnprocessed returns ingested rows whose decision never landed,
	// usually because a pass died mid-loop. The next pass replays them.
	ListUnprocessed(ctx context.Context, mailboxID int64, limit int) ([]*domain.InboundMessage, error)
	ListRoutedToHuman(ctx context.Context, tenantID int64, limit int) ([]*domain.InboundMessage, error)
	CountByMailbox(ctx context.Context, mailboxID int64) (int, error)
}

// SettingsRepository reads per-tenant automation policy (read-only to the
// pipeline).
type SettingsRepository interface {
	GetByTenant(ctx context.Context, tenantID int64) (*domain.AutomationSettings, error)
}

// DispatchJobRepository owns the durable dispatch queue. Claim is the single
// safeguard against duplicate sends and must be an atomic compare-and-set.
type DispatchJobRepository interface {
	Insert(ctx context.Context, job *domain.DispatchJob) (*domain.DispatchJob, error)
	GetByID(ctx context.Context, id int64) (*domain.DispatchJob, error)

	// Claim transitions a due pending (or retryable failed) job to sending
	// for exactly one caller. It returns (nil, nil) when another worker
	// already holds the job or the job is not due yet.
	Claim(ctx context.Context, id int64) (*domain.DispatchJob, error)

	MarkSent(ctx context.Context, id int64, smtpResponse string) error
	MarkFailed(ctx context.Context, id int64, attempt int, lastError string, nextAttemptAt time.Time) error
	MarkDead(ctx context.Context, id int64, lastError string) error

	// Requeue resets a dead job to pending for manual intervention.
	Requeue(ctx context.Context, id int64) (*domain.DispatchJob, error)

	// ListDue returns pending jobs whose next_attempt_at has passed, for the
	// periodic sweep that re-publishes lost wake-ups.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.DispatchJob, error)
	ListDead(ctx context.Context, tenantID int64, limit int) ([]*domain.DispatchJob, error)
}

// SyncRunRepository manages the per-mailbox sync lock records.
type SyncRunRepository interface {
	// Open inserts an open run. When an unfinished run already exists for
	// the mailbox it returns apperr coded ALREADY_RUNNING.
	Open(ctx context.Context, tenantID, mailboxID int64) (*domain.SyncRun, error)
	Close(ctx context.Context, runID int64, outcome domain.SyncOutcome, fetched, ingested int, lastError string) error

	// ReleaseStale closes runs that have been open longer than maxAge so a
	// crashed worker cannot wedge a mailbox forever.
	ReleaseStale(ctx context.Context, maxAge time.Duration) (int, error)
}
