package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"replyflow_server/core/domain"
	"replyflow_server/pkg/apperr"
)

// SettingsAdapter implements out.SettingsRepository using PostgreSQL.
type SettingsAdapter struct {
	db *sqlx.DB
}

// NewSettingsAdapter creates a new SettingsAdapter.
func NewSettingsAdapter(db *sqlx.DB) *SettingsAdapter {
	return &SettingsAdapter{db: db}
}

type settingsRow struct {
	TenantID          int64          `db:"tenant_id"`
	AutoReplyEnabled  bool           `db:"auto_reply_enabled"`
	Tone              sql.NullString `db:"tone"`
	Purpose           sql.NullString `db:"purpose"`
	ReplyLength       string         `db:"reply_length"`
	AllowedCategories pq.StringArray `db:"allowed_categories"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

func (r *settingsRow) toDomain() *domain.AutomationSettings {
	s := &domain.AutomationSettings{
		TenantID:         r.TenantID,
		AutoReplyEnabled: r.AutoReplyEnabled,
		ReplyLength:      domain.ReplyLength(r.ReplyLength),
		UpdatedAt:        r.UpdatedAt,
	}
	if r.Tone.Valid {
		s.Tone = r.Tone.String
	}
	if r.Purpose.Valid {
		s.Purpose = r.Purpose.String
	}
	for _, c := range r.AllowedCategories {
		if cat, ok := domain.ParseIntentCategory(c); ok {
			s.AllowedCategories = append(s.AllowedCategories, cat)
		}
	}
	return s
}

// GetByTenant reads the tenant's automation policy.
func (a *SettingsAdapter) GetByTenant(ctx context.Context, tenantID int64) (*domain.AutomationSettings, error) {
	const query = `
		SELECT tenant_id, auto_reply_enabled, tone, purpose, reply_length,
		       allowed_categories, updated_at
		FROM automation_settings
		WHERE tenant_id = $1
	`

	var row settingsRow
	if err := a.db.GetContext(ctx, &row, query, tenantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("automation settings")
		}
		return nil, apperr.DatabaseError("get automation settings", err)
	}
	return row.toDomain(), nil
}
