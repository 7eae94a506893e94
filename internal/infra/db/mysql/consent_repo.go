package mysql

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/bryanwahyu/biosight/internal/domain/consent"
)

type ConsentRepository struct {
	db *sql.DB
}

func NewConsentRepository(db *sql.DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

// Save append satu baris consent
func (r *ConsentRepository) Save(ctx context.Context, c *domain.Record) error {
	const q = `
INSERT INTO consent_logs (session_hash, disclaimer_version, ip_masked, created_at)
VALUES (?,?,?,?)`
	c.CreatedAt = nowIfZero(c.CreatedAt)
	res, err := r.db.ExecContext(ctx, q,
		c.SessionHash, stringOrDash(c.DisclaimerVersion), stringOrDash(c.MaskedIP), c.CreatedAt)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		c.ID = id
	}
	return nil
}

// Exists cek apakah session pernah setuju
func (r *ConsentRepository) Exists(ctx context.Context, sessionHash string) (bool, error) {
	const q = `SELECT id FROM consent_logs WHERE session_hash = ? LIMIT 1`
	var id int64
	err := r.db.QueryRowContext(ctx, q, sessionHash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
