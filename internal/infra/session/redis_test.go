package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/biosight/internal/middleware"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := NewRedisStore(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, mr
}

func TestRedisStoreCommitFindDelete(t *testing.T) {
	st, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, st.CommitCtx(ctx, "tok", []byte("payload"), time.Now().Add(time.Hour)))

	b, found, err := st.FindCtx(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("payload"), b)

	ttl := mr.TTL(keyPrefix + "tok")
	assert.Greater(t, ttl, 59*time.Minute)
	assert.LessOrEqual(t, ttl, time.Hour)

	require.NoError(t, st.DeleteCtx(ctx, "tok"))
	_, found, err = st.FindCtx(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStoreMissingTokenIsNotAnError(t *testing.T) {
	st, _ := newRedisStore(t)

	b, found, err := st.Find("absent")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, b)
}

func TestRedisStoreEntryExpires(t *testing.T) {
	st, mr := newRedisStore(t)
	require.NoError(t, st.Commit("tok", []byte("x"), time.Now().Add(time.Minute)))

	mr.FastForward(2 * time.Minute)
	_, found, err := st.Find("tok")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStorePastExpiryDeletes(t *testing.T) {
	st, mr := newRedisStore(t)
	require.NoError(t, st.Commit("tok", []byte("x"), time.Now().Add(time.Hour)))
	require.NoError(t, st.Commit("tok", []byte("x"), time.Now().Add(-time.Second)))
	assert.False(t, mr.Exists(keyPrefix+"tok"))
}

func TestRedisStoreServerDown(t *testing.T) {
	st, mr := newRedisStore(t)
	mr.Close()

	_, found, err := st.Find("tok")
	assert.Error(t, err)
	assert.False(t, found)
	assert.Error(t, st.Check(context.Background()))
}

func TestRedisStoreBacksSessionMiddleware(t *testing.T) {
	st, _ := newRedisStore(t)
	log, _ := test.NewNullLogger()
	sm := middleware.NewSessionManager(st, middleware.SessionOptions{CookieName: "sid", TTL: time.Hour}, log)
	h := middleware.Session(sm, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := middleware.SessionFromContext(r.Context())
		if r.Method == http.MethodPost {
			s.AcceptConsent()
		}
		middleware.WriteEnvelope(w, http.StatusOK, true, "", map[string]any{"accepted": s.ConsentAccepted})
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/consent", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/consent", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), `"accepted":true`)
}
