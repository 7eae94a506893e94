package postgres

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/bryanwahyu/biosight/internal/domain/consent"
)

type ConsentRepository struct{ db *sql.DB }

func NewConsentRepository(db *sql.DB) *ConsentRepository { return &ConsentRepository{db: db} }

func (r *ConsentRepository) Save(ctx context.Context, c *domain.Record) error {
	const q = `
INSERT INTO consent_logs (session_hash, disclaimer_version, ip_masked, created_at)
VALUES ($1,$2,$3,$4)
RETURNING id`
	c.CreatedAt = nowIfZero(c.CreatedAt)
	return r.db.QueryRowContext(ctx, q,
		c.SessionHash, stringOrDash(c.DisclaimerVersion), stringOrDash(c.MaskedIP), c.CreatedAt,
	).Scan(&c.ID)
}

func (r *ConsentRepository) Exists(ctx context.Context, sessionHash string) (bool, error) {
	const q = `SELECT id FROM consent_logs WHERE session_hash = $1 LIMIT 1`
	var id int64
	err := r.db.QueryRowContext(ctx, q, sessionHash).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}
