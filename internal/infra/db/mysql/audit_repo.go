package mysql

import (
	"context"
	"database/sql"
	"strings"

	domain "github.com/bryanwahyu/biosight/internal/domain/audit"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository { return &AuditRepository{db: db} }

func (r *AuditRepository) Save(ctx context.Context, e *domain.Event) error {
	const q = `
INSERT INTO system_audit (event_type, details, created_at)
VALUES (?,?,?)`
	details := e.Details
	if strings.TrimSpace(details) == "" {
		details = "-"
	}
	e.CreatedAt = nowIfZero(e.CreatedAt)
	res, err := r.db.ExecContext(ctx, q, stringOrDash(e.EventType), details, e.CreatedAt)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}
