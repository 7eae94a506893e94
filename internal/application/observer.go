package application

import "context"

// Outcome describes a best-effort step that failed without failing the request.
type Outcome struct {
	Op          string
	SessionHash string
	Err         error
}

// Observer receives best-effort failures (persistence writes, undecryptable
// history rows). Implementations must be safe for concurrent use.
type Observer interface {
	BestEffort(ctx context.Context, o Outcome)
}

// NopObserver drops everything.
type NopObserver struct{}

func (NopObserver) BestEffort(context.Context, Outcome) {}
