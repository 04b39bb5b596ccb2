package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"replyflow_server/core/domain"
	"replyflow_server/pkg/apperr"
)

// MailboxAdapter implements out.MailboxRepository using PostgreSQL.
type MailboxAdapter struct {
	db *sqlx.DB
}

// NewMailboxAdapter creates a new MailboxAdapter.
func NewMailboxAdapter(db *sqlx.DB) *MailboxAdapter {
	return &MailboxAdapter{db: db}
}

type mailboxRow struct {
	ID            int64        `db:"id"`
	TenantID      int64        `db:"tenant_id"`
	Address       string       `db:"address"`
	IMAPHost      string       `db:"imap_host"`
	IMAPPort      int          `db:"imap_port"`
	SMTPHost      string       `db:"smtp_host"`
	SMTPPort      int          `db:"smtp_port"`
	Folder        string       `db:"folder"`
	Username      string       `db:"username"`
	SecretEnc     string       `db:"secret_enc"`
	AuthMethod    string       `db:"auth_method"`
	TLSMode       string       `db:"tls_mode"`
	Active        bool         `db:"active"`
	DeletedAt     sql.NullTime `db:"deleted_at"`
	LastUID       int64        `db:"last_uid"`
	FailureCount  int          `db:"failure_count"`
	CooldownUntil sql.NullTime `db:"cooldown_until"`
	LastSyncedAt  sql.NullTime `db:"last_synced_at"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (r *mailboxRow) toDomain() *domain.Mailbox {
	mb := &domain.Mailbox{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Address:      r.Address,
		IMAPHost:     r.IMAPHost,
		IMAPPort:     r.IMAPPort,
		SMTPHost:     r.SMTPHost,
		SMTPPort:     r.SMTPPort,
		Folder:       r.Folder,
		Username:     r.Username,
		SecretEnc:    r.SecretEnc,
		AuthMethod:   domain.AuthMethod(r.AuthMethod),
		TLSMode:      domain.ParseTLSMode(r.TLSMode),
		Active:       r.Active,
		LastUID:      uint32(r.LastUID),
		FailureCount: r.FailureCount,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.DeletedAt.Valid {
		mb.DeletedAt = &r.DeletedAt.Time
	}
	if r.CooldownUntil.Valid {
		mb.CooldownUntil = &r.CooldownUntil.Time
	}
	if r.LastSyncedAt.Valid {
		mb.LastSyncedAt = &r.LastSyncedAt.Time
	}
	return mb
}

const mailboxColumns = `
	id, tenant_id, address, imap_host, imap_port, smtp_host, smtp_port,
	folder, username, secret_enc, auth_method, tls_mode, active, deleted_at,
	last_uid, failure_count, cooldown_until, last_synced_at,
	created_at, updated_at
`

// ListActiveByTenant returns the tenant's connected mailboxes.
func (a *MailboxAdapter) ListActiveByTenant(ctx context.Context, tenantID int64) ([]*domain.Mailbox, error) {
	const query = `
		SELECT ` + mailboxColumns + `
		FROM mailboxes
		WHERE tenant_id = $1 AND active = TRUE AND deleted_at IS NULL
		ORDER BY id
	`

	var rows []mailboxRow
	if err := a.db.SelectContext(ctx, &rows, query, tenantID); err != nil {
		return nil, apperr.DatabaseError("list mailboxes", err)
	}

	mbs := make([]*domain.Mailbox, len(rows))
	for i := range rows {
		mbs[i] = rows[i].toDomain()
	}
	return mbs, nil
}

// GetByID retrieves one mailbox, including soft-deleted ones.
func (a *MailboxAdapter) GetByID(ctx context.Context, id int64) (*domain.Mailbox, error) {
	const query = `
		SELECT ` + mailboxColumns + `
		FROM mailboxes
		WHERE id = $1
	`

	var row mailboxRow
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("mailbox")
		}
		return nil, apperr.DatabaseError("get mailbox", err)
	}
	return row.toDomain(), nil
}

// AdvanceWatermark moves last_uid forward only. GREATEST keeps a delayed
// writer from rolling it back.
func (a *MailboxAdapter) AdvanceWatermark(ctx context.Context, mailboxID int64, uid uint32) error {
	const query = `
		UPDATE mailboxes
		SET last_uid = GREATEST(last_uid, $2),
		    last_synced_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := a.db.ExecContext(ctx, query, mailboxID, int64(uid)); err != nil {
		return apperr.DatabaseError("advance watermark", err)
	}
	return nil
}

// RecordFailure increments the failure counter and sets the cooldown window.
func (a *MailboxAdapter) RecordFailure(ctx context.Context, mailboxID int64, until time.Time) error {
	const query = `
		UPDATE mailboxes
		SET failure_count = failure_count + 1,
		    cooldown_until = $2,
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := a.db.ExecContext(ctx, query, mailboxID, until); err != nil {
		return apperr.DatabaseError("record mailbox failure", err)
	}
	return nil
}

// ClearFailures resets the counter after a clean pass.
func (a *MailboxAdapter) ClearFailures(ctx context.Context, mailboxID int64) error {
	const query = `
		UPDATE mailboxes
		SET failure_count = 0,
		    cooldown_until = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`

	if _, err := a.db.ExecContext(ctx, query, mailboxID); err != nil {
		return apperr.DatabaseError("clear mailbox failures", err)
	}
	return nil
}
