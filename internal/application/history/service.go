package history

import (
	"context"
	"fmt"

	"github.com/bryanwahyu/biosight/internal/application"
	domain "github.com/bryanwahyu/biosight/internal/domain/analysis"
)

const DefaultLimit = 5

// Service reads a session's analyses back in plaintext.
type Service struct {
	Records  domain.Repository
	Codec    domain.Sealer
	Observer application.Observer
}

// GetHistory returns up to limit entries, newest first. A missing store
// yields an empty list; a failed query yields ErrHistoryUnavailable. Rows
// that fail to decrypt are skipped and reported.
func (s *Service) GetHistory(ctx context.Context, sessionHash string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	out := []domain.HistoryEntry{}
	if s.Records == nil {
		return out, nil
	}

	rows, err := s.Records.Latest(ctx, sessionHash, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrHistoryUnavailable, err)
	}
	for _, r := range rows {
		plain, err := s.Codec.Decrypt(r.EncryptedInterpretation)
		if err != nil {
			s.observer().BestEffort(ctx, application.Outcome{
				Op:          "history.decrypt",
				SessionHash: sessionHash,
				Err:         fmt.Errorf("record %s: %w", r.ID, err),
			})
			continue
		}
		out = append(out, domain.HistoryEntry{
			ID:             r.ID,
			ImagePath:      r.ImageRef,
			Interpretation: plain,
			CreatedAt:      r.CreatedAt,
		})
	}
	return out, nil
}

func (s *Service) observer() application.Observer {
	if s.Observer == nil {
		return application.NopObserver{}
	}
	return s.Observer
}
