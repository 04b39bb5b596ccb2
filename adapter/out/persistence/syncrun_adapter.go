package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"replyflow_server/core/domain"
	"replyflow_server/pkg/apperr"
)

// SyncRunAdapter implements out.SyncRunRepository using PostgreSQL. The
// partial unique index on (mailbox_id) WHERE finished_at IS NULL is the
// per-mailbox sync lock: the second opener hits a uniqueness violation.
type SyncRunAdapter struct {
	db *sqlx.DB
}

// NewSyncRunAdapter creates a new SyncRunAdapter.
func NewSyncRunAdapter(db *sqlx.DB) *SyncRunAdapter {
	return &SyncRunAdapter{db: db}
}

type syncRunRow struct {
	ID        int64     `db:"id"`
	TenantID  int64     `db:"tenant_id"`
	MailboxID int64     `db:"mailbox_id"`
	StartedAt time.Time `db:"started_at"`
}

// Open inserts the lock row. A concurrent unfinished run surfaces as
// ALREADY_RUNNING.
func (a *SyncRunAdapter) Open(ctx context.Context, tenantID, mailboxID int64) (*domain.SyncRun, error) {
	const query = `
		INSERT INTO sync_runs (tenant_id, mailbox_id, started_at)
		VALUES ($1, $2, NOW())
		RETURNING id, tenant_id, mailbox_id, started_at
	`

	var row syncRunRow
	if err := a.db.GetContext(ctx, &row, query, tenantID, mailboxID); err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.AlreadyRunning(mailboxID)
		}
		return nil, apperr.DatabaseError("open sync run", err)
	}

	return &domain.SyncRun{
		ID:        row.ID,
		TenantID:  row.TenantID,
		MailboxID: row.MailboxID,
		StartedAt: row.StartedAt,
	}, nil
}

// Close finishes the run and releases the lock.
func (a *SyncRunAdapter) Close(ctx context.Context, runID int64, outcome domain.SyncOutcome, fetched, ingested int, lastError string) error {
	const query = `
		UPDATE sync_runs
		SET finished_at = NOW(),
		    outcome = $2,
		    fetched = $3,
		    ingested = $4,
		    last_error = $5
		WHERE id = $1 AND finished_at IS NULL
	`

	if _, err := a.db.ExecContext(ctx, query, runID, string(outcome), fetched, ingested, nullString(lastError)); err != nil {
		return apperr.DatabaseError("close sync run", err)
	}
	return nil
}

// ReleaseStale force-closes runs older than maxAge so a crashed worker does
// not hold a mailbox lock forever.
func (a *SyncRunAdapter) ReleaseStale(ctx context.Context, maxAge time.Duration) (int, error) {
	const query = `
		UPDATE sync_runs
		SET finished_at = NOW(),
		    outcome = 'failed',
		    last_error = 'released: run exceeded maximum age'
		WHERE finished_at IS NULL AND started_at < $1
	`

	res, err := a.db.ExecContext(ctx, query, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, apperr.DatabaseError("release stale sync runs", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// isUniqueViolation reports whether err is a PostgreSQL 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
