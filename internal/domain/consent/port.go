package consent

import "context"

// Repository port untuk consent_logs
type Repository interface {
	Save(ctx context.Context, r *Record) error
	Exists(ctx context.Context, sessionHash string) (bool, error)
}
