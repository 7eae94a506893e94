package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/biosight/internal/domain/session"
)

type contextKey string

const sessionKey contextKey = "session"

// keys of the session.State fields inside the scs session
const (
	keyConsent     = "consent_accepted"
	keyLastRequest = "last_request_at"
)

// SessionOptions configures the session cookie.
type SessionOptions struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// NewSessionManager returns a cookie session manager persisting into store.
// A nil store keeps the scs in-memory default.
func NewSessionManager(store scs.Store, opts SessionOptions, log logrus.FieldLogger) *scs.SessionManager {
	sm := scs.New()
	if store != nil {
		sm.Store = store
	}
	if opts.TTL > 0 {
		sm.Lifetime = opts.TTL
	}
	if opts.CookieName != "" {
		sm.Cookie.Name = opts.CookieName
	}
	sm.Cookie.Path = "/"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Persist = true
	sm.Cookie.SameSite = http.SameSiteStrictMode
	sm.Cookie.Secure = opts.Secure
	sm.ErrorFunc = func(w http.ResponseWriter, r *http.Request, err error) {
		log.WithError(err).WithField("path", r.URL.Path).Error("session store")
		WriteEnvelope(w, http.StatusServiceUnavailable, false, "Session unavailable.", nil)
	}
	return sm
}

// Session hands handlers the caller's session.State. sm loads the session
// before the handler runs and commits it before the first response byte;
// State changes are copied into sm ahead of that commit. Requests carrying
// the same cookie are serialized so the consent flag and rate-limit stamp
// are never raced.
func Session(sm *scs.SessionManager, log logrus.FieldLogger) func(http.Handler) http.Handler {
	locks := newKeyedMutex()
	return func(next http.Handler) http.Handler {
		loaded := sm.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if sm.Token(ctx) == "" {
				// new session: the token and so the hash must exist before the handler
				if err := sm.RenewToken(ctx); err != nil {
					log.WithError(err).Error("session token")
					WriteEnvelope(w, http.StatusInternalServerError, false, "Session unavailable.", nil)
					return
				}
			}
			st := loadState(ctx, sm)

			flush := func() {
				if !st.Dirty() {
					return
				}
				sm.Put(ctx, keyConsent, st.ConsentAccepted)
				if st.LastRequestAt.IsZero() {
					sm.Remove(ctx, keyLastRequest)
				} else {
					sm.Put(ctx, keyLastRequest, st.LastRequestAt.UnixNano())
				}
				st.MarkClean()
			}

			sw := &sessionWriter{ResponseWriter: w, beforeWrite: flush}
			next.ServeHTTP(sw, r.WithContext(WithSession(ctx, st)))
			flush()
		}))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(sm.Cookie.Name); err == nil && c.Value != "" {
				unlock := locks.Lock(c.Value)
				defer unlock()
			}
			loaded.ServeHTTP(w, r)
		})
	}
}

func loadState(ctx context.Context, sm *scs.SessionManager) *session.State {
	st := session.New(session.HashToken(sm.Token(ctx)))
	st.ConsentAccepted = sm.GetBool(ctx, keyConsent)
	if ns := sm.GetInt64(ctx, keyLastRequest); ns != 0 {
		st.LastRequestAt = time.Unix(0, ns).UTC()
	}
	return st
}

// sessionWriter runs beforeWrite ahead of the first header or body write.
type sessionWriter struct {
	http.ResponseWriter
	beforeWrite func()
}

func (sw *sessionWriter) WriteHeader(code int) {
	sw.beforeWrite()
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *sessionWriter) Write(b []byte) (int, error) {
	sw.beforeWrite()
	return sw.ResponseWriter.Write(b)
}

func (sw *sessionWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }

// SessionFromContext returns the state loaded by Session, or nil.
func SessionFromContext(ctx context.Context) *session.State {
	st, _ := ctx.Value(sessionKey).(*session.State)
	return st
}

// WithSession attaches st to ctx.
func WithSession(ctx context.Context, st *session.State) context.Context {
	return context.WithValue(ctx, sessionKey, st)
}

type refLock struct {
	sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
