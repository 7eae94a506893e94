package postgres

import (
	"context"
	"database/sql"

	domain "github.com/bryanwahyu/biosight/internal/domain/audit"
)

type AuditRepository struct{ db *sql.DB }

func NewAuditRepository(db *sql.DB) *AuditRepository { return &AuditRepository{db: db} }

func (r *AuditRepository) Save(ctx context.Context, e *domain.Event) error {
	const q = `
INSERT INTO system_audit (event_type, details, created_at)
VALUES ($1,$2,$3)
RETURNING id`
	e.CreatedAt = nowIfZero(e.CreatedAt)
	return r.db.QueryRowContext(ctx, q, stringOrDash(e.EventType), stringOrDash(e.Details), e.CreatedAt).Scan(&e.ID)
}
