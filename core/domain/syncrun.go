package domain

import "time"

// SyncOutcome records how a sync pass for one mailbox ended.
type SyncOutcome string

const (
	SyncOutcomeOK      SyncOutcome = "ok"
	SyncOutcomePartial SyncOutcome = "partial"
	SyncOutcomeFailed  SyncOutcome = "failed"
)

// SyncRun is the lock record for one in-flight fetch-classify-decide pass
// over a mailbox. At most one unfinished run may exist per mailbox; the
// database enforces that with a partial unique index.
type SyncRun struct {
	ID         int64       `json:"id"`
	TenantID   int64       `json:"tenant_id"`
	MailboxID  int64       `json:"mailbox_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Outcome    SyncOutcome `json:"outcome,omitempty"`
	Fetched    int         `json:"fetched"`
	Ingested   int         `json:"ingested"`
	LastError  string      `json:"last_error,omitempty"`
}

// Open reports whether the run still holds the per-mailbox lock.
func (r *SyncRun) Open() bool { return r.FinishedAt == nil }

// TenantPassResult aggregates one tenant pass for the trigger surface.
type TenantPassResult struct {
	TenantID  int64       `json:"tenant_id"`
	Mailboxes int         `json:"mailboxes"`
	Fetched   int         `json:"fetched"`
	Ingested  int         `json:"ingested"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`
	Outcome   SyncOutcome `json:"outcome"`
}

// TickResult sums the passes of one manual tick across all active tenants.
type TickResult struct {
	Tenants   int `json:"tenants"`
	Mailboxes int `json:"mailboxes"`
	Messages  int `json:"messages"`
	Failed    int `json:"failed"`
}
