package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"replyflow_server/core/domain"
	"replyflow_server/pkg/apperr"
)

// DispatchAdapter implements out.DispatchJobRepository using PostgreSQL.
// Claim is a single compare-and-set UPDATE, which is what makes concurrent
// workers safe against double-sends.
type DispatchAdapter struct {
	db *sqlx.DB
}

// NewDispatchAdapter creates a new DispatchAdapter.
func NewDispatchAdapter(db *sqlx.DB) *DispatchAdapter {
	return &DispatchAdapter{db: db}
}

type dispatchRow struct {
	ID            int64          `db:"id"`
	TenantID      int64          `db:"tenant_id"`
	MailboxID     int64          `db:"mailbox_id"`
	MessageID     sql.NullInt64  `db:"message_id"`
	ToAddress     string         `db:"to_address"`
	Subject       string         `db:"subject"`
	Body          string         `db:"body"`
	Status        string         `db:"status"`
	Attempts      int            `db:"attempts"`
	MaxAttempts   int            `db:"max_attempts"`
	NextAttemptAt sql.NullTime   `db:"next_attempt_at"`
	LastError     sql.NullString `db:"last_error"`
	SentAt        sql.NullTime   `db:"sent_at"`
	SMTPResponse  sql.NullString `db:"smtp_response"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r *dispatchRow) toDomain() *domain.DispatchJob {
	j := &domain.DispatchJob{
		ID:          r.ID,
		TenantID:    r.TenantID,
		MailboxID:   r.MailboxID,
		ToAddress:   r.ToAddress,
		Subject:     r.Subject,
		Body:        r.Body,
		Status:      domain.JobStatus(r.Status),
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.MessageID.Valid {
		j.MessageID = &r.MessageID.Int64
	}
	if r.NextAttemptAt.Valid {
		j.NextAttemptAt = &r.NextAttemptAt.Time
	}
	if r.LastError.Valid {
		j.LastError = r.LastError.String
	}
	if r.SentAt.Valid {
		j.SentAt = &r.SentAt.Time
	}
	if r.SMTPResponse.Valid {
		j.SMTPResponse = r.SMTPResponse.String
	}
	return j
}

const dispatchColumns = `
	id, tenant_id, mailbox_id, message_id, to_address, subject, body,
	status, attempts, max_attempts, next_attempt_at, last_error,
	sent_at, smtp_response, created_at, updated_at
`

// Insert persists a new pending job and returns it with the assigned id.
func (a *DispatchAdapter) Insert(ctx context.Context, job *domain.DispatchJob) (*domain.DispatchJob, error) {
	const query = `
		INSERT INTO dispatch_jobs (
			tenant_id, mailbox_id, message_id, to_address, subject, body,
			status, attempts, max_attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, NOW(), NOW())
		RETURNING ` + dispatchColumns

	var msgID sql.NullInt64
	if job.MessageID != nil {
		msgID = sql.NullInt64{Int64: *job.MessageID, Valid: true}
	}

	var row dispatchRow
	err := a.db.GetContext(ctx, &row, query,
		job.TenantID, job.MailboxID, msgID, job.ToAddress, job.Subject, job.Body,
		string(domain.JobPending), job.MaxAttempts,
	)
	if err != nil {
		return nil, apperr.DatabaseError("insert dispatch job", err)
	}
	return row.toDomain(), nil
}

// GetByID retrieves one job.
func (a *DispatchAdapter) GetByID(ctx context.Context, id int64) (*domain.DispatchJob, error) {
	const query = `SELECT ` + dispatchColumns + ` FROM dispatch_jobs WHERE id = $1`

	var row dispatchRow
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("dispatch job")
		}
		return nil, apperr.DatabaseError("get dispatch job", err)
	}
	return row.toDomain(), nil
}

// Claim atomically transitions one due job to sending. Exactly one of any
// number of concurrent claimers gets a row back; the rest see (nil, nil).
func (a *DispatchAdapter) Claim(ctx context.Context, id int64) (*domain.DispatchJob, error) {
	const query = `
		UPDATE dispatch_jobs
		SET status = 'sending', updated_at = NOW()
		WHERE id = $1
		  AND status IN ('pending', 'failed')
		  AND (next_attempt_at IS NULL OR next_attempt_at <= NOW())
		RETURNING ` + dispatchColumns

	var row dispatchRow
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperr.DatabaseError("claim dispatch job", err)
	}
	return row.toDomain(), nil
}

// MarkSent records the successful send and the SMTP response line.
func (a *DispatchAdapter) MarkSent(ctx context.Context, id int64, smtpResponse string) error {
	const query = `
		UPDATE dispatch_jobs
		SET status = 'sent',
		    attempts = attempts + 1,
		    sent_at = NOW(),
		    smtp_response = $2,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`

	if _, err := a.db.ExecContext(ctx, query, id, nullString(smtpResponse)); err != nil {
		return apperr.DatabaseError("mark dispatch job sent", err)
	}
	return nil
}

// MarkFailed records a retryable failure with its backoff deadline.
func (a *DispatchAdapter) MarkFailed(ctx context.Context, id int64, attempt int, lastError string, nextAttemptAt time.Time) error {
	const query = `
		UPDATE dispatch_jobs
		SET status = 'failed',
		    attempts = $2,
		    last_error = $3,
		    next_attempt_at = $4,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`

	if _, err := a.db.ExecContext(ctx, query, id, attempt, lastError, nextAttemptAt); err != nil {
		return apperr.DatabaseError("mark dispatch job failed", err)
	}
	return nil
}

// MarkDead moves a job past the retry ceiling into the terminal state.
func (a *DispatchAdapter) MarkDead(ctx context.Context, id int64, lastError string) error {
	const query = `
		UPDATE dispatch_jobs
		SET status = 'dead',
		    attempts = attempts + 1,
		    last_error = $2,
		    next_attempt_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`

	if _, err := a.db.ExecContext(ctx, query, id, lastError); err != nil {
		return apperr.DatabaseError("mark dispatch job dead", err)
	}
	return nil
}

// Requeue resets a dead job to pending for a manual retry.
func (a *DispatchAdapter) Requeue(ctx context.Context, id int64) (*domain.DispatchJob, error) {
	const query = `
		UPDATE dispatch_jobs
		SET status = 'pending',
		    attempts = 0,
		    next_attempt_at = NULL,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'dead'
		RETURNING ` + dispatchColumns

	var row dispatchRow
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.Conflict("job is not dead")
		}
		return nil, apperr.DatabaseError("requeue dispatch job", err)
	}
	return row.toDomain(), nil
}

// ListDue returns claimable jobs whose backoff deadline has passed.
func (a *DispatchAdapter) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.DispatchJob, error) {
	const query = `
		SELECT ` + dispatchColumns + `
		FROM dispatch_jobs
		WHERE status IN ('pending', 'failed')
		  AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		ORDER BY created_at
		LIMIT $2
	`

	var rows []dispatchRow
	if err := a.db.SelectContext(ctx, &rows, query, now, limit); err != nil {
		return nil, apperr.DatabaseError("list due dispatch jobs", err)
	}

	jobs := make([]*domain.DispatchJob, len(rows))
	for i := range rows {
		jobs[i] = rows[i].toDomain()
	}
	return jobs, nil
}

// ListDead returns terminally failed jobs for operator inspection.
func (a *DispatchAdapter) ListDead(ctx context.Context, tenantID int64, limit int) ([]*domain.DispatchJob, error) {
	const query = `
		SELECT ` + dispatchColumns + `
		FROM dispatch_jobs
		WHERE tenant_id = $1 AND status = 'dead'
		ORDER BY updated_at DESC
		LIMIT $2
	`

	var rows []dispatchRow
	if err := a.db.SelectContext(ctx, &rows, query, tenantID, limit); err != nil {
		return nil, apperr.DatabaseError("list dead dispatch jobs", err)
	}

	jobs := make([]*domain.DispatchJob, len(rows))
	for i := range rows {
		jobs[i] = rows[i].toDomain()
	}
	return jobs, nil
}
