package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"replyflow_server/core/domain"
	"replyflow_server/pkg/apperr"
)

// MessageAdapter implements out.MessageRepository using PostgreSQL. The
// UNIQUE (mailbox_id, external_uid) constraint is the dedup ledger.
type MessageAdapter struct {
	db *sqlx.DB
}

// NewMessageAdapter creates a new MessageAdapter.
func NewMessageAdapter(db *sqlx.DB) *MessageAdapter {
	return &MessageAdapter{db: db}
}

type messageRow struct {
	ID            int64          `db:"id"`
	TenantID      int64          `db:"tenant_id"`
	MailboxID     int64          `db:"mailbox_id"`
	ExternalUID   int64          `db:"external_uid"`
	MessageID     sql.NullString `db:"message_id"`
	FromEmail     string         `db:"from_email"`
	FromName      sql.NullString `db:"from_name"`
	Subject       string         `db:"subject"`
	Body          string         `db:"body"`
	ReceivedAt    time.Time      `db:"received_at"`
	Intent        sql.NullString `db:"intent"`
	Processed     bool           `db:"processed"`
	RoutedToHuman bool           `db:"routed_to_human"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r *messageRow) toDomain() *domain.InboundMessage {
	m := &domain.InboundMessage{
		ID:            r.ID,
		TenantID:      r.TenantID,
		MailboxID:     r.MailboxID,
		ExternalUID:   uint32(r.ExternalUID),
		FromEmail:     r.FromEmail,
		Subject:       r.Subject,
		Body:          r.Body,
		ReceivedAt:    r.ReceivedAt,
		Processed:     r.Processed,
		RoutedToHuman: r.RoutedToHuman,
		CreatedAt:     r.CreatedAt,
	}
	if r.MessageID.Valid {
		m.MessageID = r.MessageID.String
	}
	if r.FromName.Valid {
		m.FromName = r.FromName.String
	}
	if r.Intent.Valid {
		m.Intent = domain.IntentCategory(r.Intent.String)
	}
	return m
}

// InsertNew persists messages, silently skipping duplicates. Only the rows
// that actually landed come back, so callers process each message once.
func (a *MessageAdapter) InsertNew(ctx context.Context, msgs []*domain.InboundMessage) ([]*domain.InboundMessage, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	const query = `
		INSERT INTO inbound_messages (
			tenant_id, mailbox_id, external_uid, message_id,
			from_email, from_name, subject, body, received_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (mailbox_id, external_uid) DO NOTHING
		RETURNING id, tenant_id, mailbox_id, external_uid, message_id,
		          from_email, from_name, subject, body, received_at,
		          intent, processed, routed_to_human, created_at
	`

	inserted := make([]*domain.InboundMessage, 0, len(msgs))
	for _, m := range msgs {
		var row messageRow
		err := a.db.GetContext(ctx, &row, query,
			m.TenantID, m.MailboxID, int64(m.ExternalUID), nullString(m.MessageID),
			m.FromEmail, nullString(m.FromName), m.Subject, m.Body, m.ReceivedAt,
		)
		if err != nil {
			if err == sql.ErrNoRows {
				// Duplicate: the dedup ledger already has this message.
				continue
			}
			return inserted, apperr.DatabaseError("insert inbound message", err)
		}
		inserted = append(inserted, row.toDomain())
	}
	return inserted, nil
}

// SetIntent records the classification result.
func (a *MessageAdapter) SetIntent(ctx context.Context, messageID int64, intent domain.IntentCategory) error {
	const query = `UPDATE inbound_messages SET intent = $2 WHERE id = $1`

	if _, err := a.db.ExecContext(ctx, query, messageID, string(intent)); err != nil {
		return apperr.DatabaseError("set message intent", err)
	}
	return nil
}

// MarkProcessed advances the processed flag and records the routing outcome.
func (a *MessageAdapter) MarkProcessed(ctx context.Context, messageID int64, routedToHuman bool) error {
	const query = `
		UPDATE inbound_messages
		SET processed = TRUE, routed_to_human = $2
		WHERE id = $1
	`

	if _, err := a.db.ExecContext(ctx, query, messageID, routedToHuman); err != nil {
		return apperr.DatabaseError("mark message processed", err)
	}
	return nil
}

// ListUnprocessed returns messages a previous pass ingested but never
// decided on, oldest first so replay preserves arrival order.
func (a *MessageAdapter) ListUnprocessed(ctx context.Context, mailboxID int64, limit int) ([]*domain.InboundMessage, error) {
	const query = `
		SELECT id, tenant_id, mailbox_id, external_uid, message_id,
		       from_email, from_name, subject, body, received_at,
		       intent, processed, routed_to_human, created_at
		FROM inbound_messages
		WHERE mailbox_id = $1 AND processed = FALSE
		ORDER BY id
		LIMIT $2
	`

	var rows []messageRow
	if err := a.db.SelectContext(ctx, &rows, query, mailboxID, limit); err != nil {
		return nil, apperr.DatabaseError("list unprocessed messages", err)
	}

	msgs := make([]*domain.InboundMessage, len(rows))
	for i := range rows {
		msgs[i] = rows[i].toDomain()
	}
	return msgs, nil
}

// ListRoutedToHuman returns messages waiting for manual handling, newest first.
func (a *MessageAdapter) ListRoutedToHuman(ctx context.Context, tenantID int64, limit int) ([]*domain.InboundMessage, error) {
	const query = `
		SELECT id, tenant_id, mailbox_id, external_uid, message_id,
		       from_email, from_name, subject, body, received_at,
		       intent, processed, routed_to_human, created_at
		FROM inbound_messages
		WHERE tenant_id = $1 AND routed_to_human = TRUE
		ORDER BY received_at DESC
		LIMIT $2
	`

	var rows []messageRow
	if err := a.db.SelectContext(ctx, &rows, query, tenantID, limit); err != nil {
		return nil, apperr.DatabaseError("list human-routed messages", err)
	}

	msgs := make([]*domain.InboundMessage, len(rows))
	for i := range rows {
		msgs[i] = rows[i].toDomain()
	}
	return msgs, nil
}

// CountByMailbox returns the ingested message count for one mailbox.
func (a *MessageAdapter) CountByMailbox(ctx context.Context, mailboxID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM inbound_messages WHERE mailbox_id = $1`

	var n int
	if err := a.db.GetContext(ctx, &n, query, mailboxID); err != nil {
		return 0, apperr.DatabaseError("count messages", err)
	}
	return n, nil
}
