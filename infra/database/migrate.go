package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INT NOT NULL
);

CREATE TABLE IF NOT EXISTS tenants (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS mailboxes (
	id             BIGSERIAL PRIMARY KEY,
	tenant_id      BIGINT NOT NULL REFERENCES tenants(id),
	address        TEXT NOT NULL,
	imap_host      TEXT NOT NULL,
	imap_port      INT NOT NULL DEFAULT 993,
	smtp_host      TEXT NOT NULL,
	smtp_port      INT NOT NULL DEFAULT 587,
	folder         TEXT NOT NULL DEFAULT 'INBOX',
	username       TEXT NOT NULL,
	secret_enc     TEXT NOT NULL,
	auth_method    TEXT NOT NULL DEFAULT 'password',
	tls_mode       TEXT NOT NULL DEFAULT 'strict'
	               CHECK (tls_mode IN ('strict', 'insecure', 'starttls')),
	active         BOOLEAN NOT NULL DEFAULT TRUE,
	deleted_at     TIMESTAMPTZ,
	last_uid       BIGINT NOT NULL DEFAULT 0,
	failure_count  INT NOT NULL DEFAULT 0,
	cooldown_until TIMESTAMPTZ,
	last_synced_at TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_mailboxes_tenant ON mailboxes(tenant_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS automation_settings (
	tenant_id          BIGINT PRIMARY KEY REFERENCES tenants(id),
	auto_reply_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	tone               TEXT,
	purpose            TEXT,
	reply_length       TEXT NOT NULL DEFAULT 'medium',
	allowed_categories TEXT[] NOT NULL DEFAULT '{}',
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS inbound_messages (
	id              BIGSERIAL PRIMARY KEY,
	tenant_id       BIGINT NOT NULL REFERENCES tenants(id),
	mailbox_id      BIGINT NOT NULL REFERENCES mailboxes(id),
	external_uid    BIGINT NOT NULL,
	message_id      TEXT,
	from_email      TEXT NOT NULL,
	from_name       TEXT,
	subject         TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	received_at     TIMESTAMPTZ NOT NULL,
	intent          TEXT,
	processed       BOOLEAN NOT NULL DEFAULT FALSE,
	routed_to_human BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (mailbox_id, external_uid)
);

CREATE INDEX IF NOT EXISTS idx_messages_human
	ON inbound_messages(tenant_id, created_at DESC)
	WHERE routed_to_human;

CREATE INDEX IF NOT EXISTS idx_messages_unprocessed
	ON inbound_messages(mailbox_id, id)
	WHERE NOT processed;

CREATE TABLE IF NOT EXISTS dispatch_jobs (
	id              BIGSERIAL PRIMARY KEY,
	tenant_id       BIGINT NOT NULL REFERENCES tenants(id),
	mailbox_id      BIGINT NOT NULL REFERENCES mailboxes(id),
	message_id      BIGINT REFERENCES inbound_messages(id),
	to_address      TEXT NOT NULL,
	subject         TEXT NOT NULL,
	body            TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	attempts        INT NOT NULL DEFAULT 0,
	max_attempts    INT NOT NULL DEFAULT 5,
	next_attempt_at TIMESTAMPTZ,
	last_error      TEXT,
	sent_at         TIMESTAMPTZ,
	smtp_response   TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_jobs_due
	ON dispatch_jobs(next_attempt_at)
	WHERE status IN ('pending', 'failed');

CREATE INDEX IF NOT EXISTS idx_jobs_dead
	ON dispatch_jobs(tenant_id, updated_at DESC)
	WHERE status = 'dead';

CREATE TABLE IF NOT EXISTS sync_runs (
	id          BIGSERIAL PRIMARY KEY,
	tenant_id   BIGINT NOT NULL REFERENCES tenants(id),
	mailbox_id  BIGINT NOT NULL REFERENCES mailboxes(id),
	started_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	finished_at TIMESTAMPTZ,
	outcome     TEXT,
	fetched     INT NOT NULL DEFAULT 0,
	ingested    INT NOT NULL DEFAULT 0,
	last_error  TEXT
);

-- One open run per mailbox. The insert racing on this index is the
-- cross-process sync lock.
CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_runs_open
	ON sync_runs(mailbox_id)
	WHERE finished_at IS NULL;
`,
	},
}

// Migrate applies pending migrations inside a transaction each.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	var current int
	err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current)
	if err != nil {
		// First boot, before the version table exists.
		current = 0
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(ctx, m.sql); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM schema_version`); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("bump schema version to %d: %w", m.version, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, m.version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("bump schema version to %d: %w", m.version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}
