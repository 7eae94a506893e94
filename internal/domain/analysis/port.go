package analysis

import (
	"context"
	"io"
)

// Repository port for analysis_logs
type Repository interface {
	Save(ctx context.Context, r *Record) error
	Latest(ctx context.Context, sessionHash string, limit int) ([]*Record, error)
	OwnsImage(ctx context.Context, sessionHash, imageRef string) (bool, error)
}

// ImageStore persists uploaded specimens under a generated name.
type ImageStore interface {
	Put(ctx context.Context, name, contentType string, data []byte) error
	Open(ctx context.Context, name string) (io.ReadCloser, string, error)
}

// Sealer encrypts interpretations for storage at rest.
type Sealer interface {
	Encrypt(plaintext string) ([]byte, error)
	Decrypt(blob []byte) (string, error)
}
