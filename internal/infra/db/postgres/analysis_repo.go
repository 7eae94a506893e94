package postgres

import (
	"context"
	"database/sql"
	"errors"

	domain "github.com/bryanwahyu/biosight/internal/domain/analysis"
)

type AnalysisRepository struct{ db *sql.DB }

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository { return &AnalysisRepository{db: db} }

// Save inserts an analysis record; the interpretation is already sealed
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Record) error {
	const q = `
INSERT INTO analysis_logs (id, session_hash, image_ref, interpretation_blob, created_at)
VALUES ($1,$2,$3,$4,$5)`
	a.CreatedAt = nowIfZero(a.CreatedAt)
	_, err := r.db.ExecContext(ctx, q,
		string(a.ID), a.SessionHash, stringOrDash(a.ImageRef), a.EncryptedInterpretation, a.CreatedAt)
	return err
}

// Latest returns a session's records ordered by created_at desc
func (r *AnalysisRepository) Latest(ctx context.Context, sessionHash string, limit int) ([]*domain.Record, error) {
	if limit <= 0 {
		limit = 5
	}
	const q = `
SELECT id, session_hash, image_ref, interpretation_blob, created_at
FROM analysis_logs
WHERE session_hash = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`
	rows, err := r.db.QueryContext(ctx, q, sessionHash, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		var a domain.Record
		var id string
		if err := rows.Scan(&id, &a.SessionHash, &a.ImageRef, &a.EncryptedInterpretation, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ID = domain.RecordID(id)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *AnalysisRepository) OwnsImage(ctx context.Context, sessionHash, imageRef string) (bool, error) {
	const q = `SELECT id FROM analysis_logs WHERE session_hash = $1 AND image_ref = $2 LIMIT 1`
	var id string
	err := r.db.QueryRowContext(ctx, q, sessionHash, imageRef).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}
