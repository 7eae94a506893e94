package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS consent_logs (
  id BIGSERIAL PRIMARY KEY,
  session_hash CHAR(64) NOT NULL,
  disclaimer_version VARCHAR(16) NOT NULL,
  ip_masked VARCHAR(64) NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_consent_session ON consent_logs (session_hash)`,
	`CREATE TABLE IF NOT EXISTS analysis_logs (
  id UUID PRIMARY KEY,
  session_hash CHAR(64) NOT NULL,
  image_ref VARCHAR(255) NOT NULL,
  interpretation_blob BYTEA NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_session_created ON analysis_logs (session_hash, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS system_audit (
  id BIGSERIAL PRIMARY KEY,
  event_type VARCHAR(64) NOT NULL,
  details TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
}

// EnsureSchema creates the tables and indexes when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
