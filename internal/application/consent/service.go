package consent

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanwahyu/biosight/internal/application"
	"github.com/bryanwahyu/biosight/internal/domain/audit"
	domain "github.com/bryanwahyu/biosight/internal/domain/consent"
	"github.com/bryanwahyu/biosight/internal/domain/session"
)

const (
	MsgRecorded            = "Consent recorded."
	MsgFailed              = "Failed to log consent."
	MsgDatabaseUnavailable = "Database unavailable."
)

// Service implements the consent gate. Repo and Audit may be nil when no
// database is configured.
type Service struct {
	Repo              domain.Repository
	Audit             audit.Repository
	Observer          application.Observer
	DisclaimerVersion string
	Clock             application.Clock
}

// Result is a soft outcome; storage failures never become request errors.
type Result struct {
	Success bool
	Message string
}

// CheckStatus reports whether the session has accepted the disclaimer.
// A session without the flag is checked against consent_logs and the flag
// is restored when a row exists.
func (s *Service) CheckStatus(ctx context.Context, st *session.State) bool {
	if st.ConsentAccepted {
		return true
	}
	if s.Repo == nil {
		return false
	}
	ok, err := s.Repo.Exists(ctx, st.Hash)
	if err != nil {
		s.observer().BestEffort(ctx, application.Outcome{Op: "consent.lookup", SessionHash: st.Hash, Err: err})
		return false
	}
	if ok {
		st.AcceptConsent()
	}
	return ok
}

// RecordConsent appends a consent row and sets the session flag. The flag is
// only set once the row is stored.
func (s *Service) RecordConsent(ctx context.Context, st *session.State, remoteAddr string) Result {
	if s.Repo == nil {
		return Result{Success: false, Message: MsgDatabaseUnavailable}
	}
	rec := &domain.Record{
		SessionHash:       st.Hash,
		DisclaimerVersion: s.DisclaimerVersion,
		MaskedIP:          domain.MaskIP(remoteAddr),
		CreatedAt:         s.now(),
	}
	if err := s.Repo.Save(ctx, rec); err != nil {
		s.observer().BestEffort(ctx, application.Outcome{Op: "consent.save", SessionHash: st.Hash, Err: err})
		return Result{Success: false, Message: MsgFailed}
	}
	st.AcceptConsent()

	if s.Audit != nil {
		ev := &audit.Event{
			EventType: audit.EventConsentRecorded,
			Details:   fmt.Sprintf("Session: %s, Version: %s", st.Hash, rec.DisclaimerVersion),
			CreatedAt: rec.CreatedAt,
		}
		if err := s.Audit.Save(ctx, ev); err != nil {
			s.observer().BestEffort(ctx, application.Outcome{Op: "audit.save", SessionHash: st.Hash, Err: err})
		}
	}
	return Result{Success: true, Message: MsgRecorded}
}

func (s *Service) observer() application.Observer {
	if s.Observer == nil {
		return application.NopObserver{}
	}
	return s.Observer
}

func (s *Service) now() time.Time { return application.NowUTC(s.Clock) }
