package session

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// State is the server-side state scoped to one browser session. It is read
// from the cookie session when a request starts and written back before the
// response goes out.
type State struct {
	Hash            string    `json:"hash"`
	ConsentAccepted bool      `json:"consent_accepted"`
	LastRequestAt   time.Time `json:"last_request_at,omitempty"`

	dirty bool
}

// New returns an empty state for the given session hash.
func New(hash string) *State {
	return &State{Hash: hash}
}

// HashToken derives the session hash from a raw session token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// AcceptConsent sets the consent flag. There is no reverse transition.
func (s *State) AcceptConsent() {
	if !s.ConsentAccepted {
		s.ConsentAccepted = true
		s.dirty = true
	}
}

// Allow reports whether a rate-limited request may proceed at now. The first
// call always succeeds; later calls succeed only once cooldown has elapsed
// since the last successful call. On success the stamp is refreshed.
func (s *State) Allow(now time.Time, cooldown time.Duration) bool {
	if !s.LastRequestAt.IsZero() && now.Sub(s.LastRequestAt) < cooldown {
		return false
	}
	s.LastRequestAt = now
	s.dirty = true
	return true
}

// Dirty reports whether the state changed since it was loaded.
func (s *State) Dirty() bool { return s.dirty }

// MarkClean resets the dirty flag after a successful save.
func (s *State) MarkClean() { s.dirty = false }
