// Package persistence provides database adapters implementing outbound ports.
package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"replyflow_server/core/domain"
	"replyflow_server/pkg/apperr"
)

// TenantAdapter implements out.TenantRepository using PostgreSQL.
type TenantAdapter struct {
	db *sqlx.DB
}

// NewTenantAdapter creates a new TenantAdapter.
func NewTenantAdapter(db *sqlx.DB) *TenantAdapter {
	return &TenantAdapter{db: db}
}

type tenantRow struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *tenantRow) toDomain() *domain.Tenant {
	return &domain.Tenant{
		ID:        r.ID,
		Name:      r.Name,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ListActive returns all active tenants in id order.
func (a *TenantAdapter) ListActive(ctx context.Context) ([]*domain.Tenant, error) {
	const query = `
		SELECT id, name, active, created_at, updated_at
		FROM tenants
		WHERE active = TRUE
		ORDER BY id
	`

	var rows []tenantRow
	if err := a.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, apperr.DatabaseError("list active tenants", err)
	}

	tenants := make([]*domain.Tenant, len(rows))
	for i := range rows {
		tenants[i] = rows[i].toDomain()
	}
	return tenants, nil
}

// GetByID retrieves one tenant.
func (a *TenantAdapter) GetByID(ctx context.Context, id int64) (*domain.Tenant, error) {
	const query = `
		SELECT id, name, active, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`

	var row tenantRow
	if err := a.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("tenant")
		}
		return nil, apperr.DatabaseError("get tenant", err)
	}
	return row.toDomain(), nil
}
