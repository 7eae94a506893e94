package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2/memstore"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appanalysis "github.com/bryanwahyu/biosight/internal/application/analysis"
	appconsent "github.com/bryanwahyu/biosight/internal/application/consent"
	apphistory "github.com/bryanwahyu/biosight/internal/application/history"
	"github.com/bryanwahyu/biosight/internal/client/api"
	"github.com/bryanwahyu/biosight/internal/client/offline"
	"github.com/bryanwahyu/biosight/internal/domain/analysis"
	"github.com/bryanwahyu/biosight/internal/domain/consent"
	"github.com/bryanwahyu/biosight/internal/domain/session"
	"github.com/bryanwahyu/biosight/internal/infra/ai/remote"
	"github.com/bryanwahyu/biosight/internal/infra/codec"
	"github.com/bryanwahyu/biosight/internal/infra/storage"
)

const testKey = "0123456789abcdef0123456789abcdef"

var jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 1024)...)

type memConsent struct {
	mu   sync.Mutex
	rows []*consent.Record
}

func (m *memConsent) Save(_ context.Context, r *consent.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

func (m *memConsent) Exists(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.SessionHash == hash {
			return true, nil
		}
	}
	return false, nil
}

type memAnalysis struct {
	mu   sync.Mutex
	rows []*analysis.Record
}

func (m *memAnalysis) Save(_ context.Context, r *analysis.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

func (m *memAnalysis) Latest(_ context.Context, hash string, limit int) ([]*analysis.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*analysis.Record
	for _, r := range m.rows {
		if r.SessionHash == hash {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memAnalysis) OwnsImage(_ context.Context, hash, ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.SessionHash == hash && r.ImageRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAnalysis) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type harness struct {
	handler   http.Handler
	server    *httptest.Server
	upstream  *httptest.Server
	status    atomic.Int32
	body      atomic.Value
	records   *memAnalysis
	codec     *codec.Codec
	sessions  *memstore.MemStore
	upstreamN atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithCooldown(t, 10*time.Second)
}

func newHarnessWithCooldown(t *testing.T, cooldown time.Duration) *harness {
	t.Helper()
	h := &harness{records: &memAnalysis{}}
	h.status.Store(http.StatusOK)
	h.body.Store(`{"interpretation":"X"}`)

	h.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.upstreamN.Add(1)
		w.WriteHeader(int(h.status.Load()))
		_, _ = io.WriteString(w, h.body.Load().(string))
	}))
	t.Cleanup(h.upstream.Close)

	c, err := codec.New(testKey)
	require.NoError(t, err)
	h.codec = c
	images, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	h.sessions = memstore.New()
	t.Cleanup(h.sessions.StopCleanup)

	log, _ := test.NewNullLogger()
	consentSvc := &appconsent.Service{Repo: &memConsent{}, DisclaimerVersion: "1.0.0"}
	analysisSvc := &appanalysis.Service{
		Images:    images,
		Inference: remote.NewClient(h.upstream.URL, 2*time.Second),
		Records:   h.records,
		Codec:     c,
		Consent:   consentSvc,
		Cooldown:  cooldown,
		Timeout:   2 * time.Second,
	}
	historySvc := &apphistory.Service{Records: h.records, Codec: c}

	h.handler = NewRouter(Deps{
		Analysis: analysisSvc,
		Consent:  consentSvc,
		History:  historySvc,
		Sessions: h.sessions,
		Log:      log,
	}, Options{CookieName: "sid"})
	h.server = httptest.NewServer(h.handler)
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func (h *harness) sessionHash(t *testing.T, c *http.Client) string {
	t.Helper()
	u, _ := url.Parse(h.server.URL)
	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name == "sid" {
			return session.HashToken(ck.Value)
		}
	}
	t.Fatal("no session cookie")
	return ""
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (h *harness) accept(t *testing.T, c *http.Client) {
	t.Helper()
	resp, err := c.Post(h.server.URL+"/consent", "application/json", nil)
	require.NoError(t, err)
	body := decode(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["success"])
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (h *harness) submit(t *testing.T, c *http.Client, filename string, data []byte) (*http.Response, map[string]any) {
	t.Helper()
	body, ct := multipartBody(t, "image", filename, data)
	resp, err := c.Post(h.server.URL+"/process", ct, body)
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func TestProcessRequiresConsent(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	resp, body := h.submit(t, c, "a.jpg", jpegBytes)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Unauthorized: Legal consent required.", body["message"])
	assert.NotNil(t, body["timestamp"])
	assert.Zero(t, h.upstreamN.Load())
}

func TestConsentFlow(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	resp, err := c.Get(h.server.URL + "/consent")
	require.NoError(t, err)
	assert.Equal(t, false, decode(t, resp)["accepted"])

	h.accept(t, c)

	resp, err = c.Get(h.server.URL + "/consent")
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, resp)["accepted"])
}

func TestProcessSuccessPersistsSealedRecord(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.accept(t, c)

	resp, body := h.submit(t, c, "scan.jpg", jpegBytes)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "X", body["interpretation"])
	imageID, _ := body["image_id"].(string)
	assert.Regexp(t, `^[a-f0-9]{32}\.jpg$`, imageID)

	require.Equal(t, 1, h.records.count())
	rec := h.records.rows[0]
	assert.Equal(t, h.sessionHash(t, c), rec.SessionHash)
	plain, err := h.codec.Decrypt(rec.EncryptedInterpretation)
	require.NoError(t, err)
	assert.Equal(t, "X", plain)

	// owner can fetch the image back, a stranger cannot
	img, err := c.Get(h.server.URL + "/images/" + imageID)
	require.NoError(t, err)
	data, _ := io.ReadAll(img.Body)
	img.Body.Close()
	assert.Equal(t, http.StatusOK, img.StatusCode)
	assert.Equal(t, jpegBytes, data)

	stranger := h.client(t)
	img, err = stranger.Get(h.server.URL + "/images/" + imageID)
	require.NoError(t, err)
	img.Body.Close()
	assert.Equal(t, http.StatusNotFound, img.StatusCode)
}

func TestProcessRateLimited(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.accept(t, c)

	resp, _ := h.submit(t, c, "a.jpg", jpegBytes)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.submit(t, c, "b.jpg", jpegBytes)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "10", resp.Header.Get("Retry-After"))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, int32(1), h.upstreamN.Load())
}

func TestProcessRejectsOversizedUpload(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.accept(t, c)

	big := make([]byte, 15*1024*1024)
	copy(big, jpegBytes)
	payload, ct := multipartBody(t, "image", "big.jpg", big)

	// served in-process so the unread body cannot race the response
	req := httptest.NewRequest(http.MethodPost, "/process", payload)
	req.Header.Set("Content-Type", ct)
	u, _ := url.Parse(h.server.URL)
	for _, ck := range c.Jar.Cookies(u) {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "File too large. Maximum size is 10MB.", body["message"])
	assert.Zero(t, h.upstreamN.Load())
}

func TestProcessRejectsSpoofedType(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.accept(t, c)

	pdf := append([]byte("%PDF-1.7\n"), make([]byte, 1024*1024)...)
	resp, body := h.submit(t, c, "xray.jpg", pdf)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid file type. Only JPG, PNG, and WebP allowed.", body["message"])
	assert.Zero(t, h.upstreamN.Load())
}

func TestProcessMissingFile(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)
	h.accept(t, c)

	body, ct := multipartBody(t, "document", "a.jpg", jpegBytes)
	resp, err := c.Post(h.server.URL+"/process", ct, body)
	require.NoError(t, err)
	out := decode(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No image uploaded or upload error occurred.", out["message"])
}

func TestProcessUpstreamFailure(t *testing.T) {
	h := newHarness(t)
	h.status.Store(http.StatusInternalServerError)
	h.body.Store(`{"detail":"boom"}`)
	c := h.client(t)
	h.accept(t, c)

	resp, body := h.submit(t, c, "a.jpg", jpegBytes)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(500), body["code"])
	assert.Zero(t, h.records.count())
}

func TestProcessMalformedUpstreamFallsBackToRawBody(t *testing.T) {
	h := newHarness(t)
	h.body.Store(`{"summary":"no wrapper"}`)
	c := h.client(t)
	h.accept(t, c)

	resp, body := h.submit(t, c, "a.jpg", jpegBytes)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"summary":"no wrapper"}`, body["interpretation"])
	assert.Equal(t, 1, h.records.count())
}

func TestProcessWrongMethodAfterGates(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	resp, err := c.Get(h.server.URL + "/process")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	h.accept(t, c)
	resp, err = c.Get(h.server.URL + "/process")
	require.NoError(t, err)
	body := decode(t, resp)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "Method not allowed.", body["message"])
}

func TestHistoryReturnsFiveNewest(t *testing.T) {
	h := newHarness(t)
	c := h.client(t)

	// first request issues the session cookie
	resp, err := c.Get(h.server.URL + "/history")
	require.NoError(t, err)
	first := decode(t, resp)
	assert.Equal(t, true, first["success"])
	assert.Empty(t, first["history"])

	hash := h.sessionHash(t, c)
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		blob, err := h.codec.Encrypt(fmt.Sprintf("finding-%d", i))
		require.NoError(t, err)
		require.NoError(t, h.records.Save(context.Background(), &analysis.Record{
			ID: analysis.RecordID(fmt.Sprint(i)), SessionHash: hash, ImageRef: fmt.Sprintf("%d.png", i),
			EncryptedInterpretation: blob, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	resp, err = c.Get(h.server.URL + "/history")
	require.NoError(t, err)
	body := decode(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items, ok := body["history"].([]any)
	require.True(t, ok)
	require.Len(t, items, 5)
	for i, it := range items {
		entry := it.(map[string]any)
		assert.Equal(t, fmt.Sprintf("finding-%d", 6-i), entry["interpretation"])
		assert.Equal(t, fmt.Sprintf("%d.png", 6-i), entry["image_path"])
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, "healthy", decode(t, resp)["status"])

	resp, err = http.Get(h.server.URL + "/metrics")
	require.NoError(t, err)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(data), "biosight_http_requests_total")
}

func TestProcessRateLimitedAdvertisesCooldown(t *testing.T) {
	h := newHarnessWithCooldown(t, 1500*time.Millisecond)
	c := h.client(t)
	h.accept(t, c)

	resp, _ := h.submit(t, c, "a.jpg", jpegBytes)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := h.submit(t, c, "b.jpg", jpegBytes)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get("Retry-After"))
	assert.Equal(t, false, body["success"])
}

func TestOfflineQueueDrainsThroughCooldown(t *testing.T) {
	h := newHarnessWithCooldown(t, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	c, err := api.New(h.server.URL, 5*time.Second)
	require.NoError(t, err)
	c.CookieName = "sid"
	require.NoError(t, c.AcceptConsent(ctx))

	q, err := offline.OpenSQLite(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
		_, err := q.Enqueue(ctx, offline.Item{Filename: name, MIME: "image/jpeg", Data: jpegBytes})
		require.NoError(t, err)
	}

	log, _ := test.NewNullLogger()
	e := offline.NewEngine(c, q, log)
	go func() { _ = e.Run(ctx) }()

	report, err := e.Drain(ctx)
	require.NoError(t, err)
	assert.NoError(t, report.Err)
	assert.Equal(t, 3, report.Sent)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 3, h.records.count())
	assert.EqualValues(t, 3, h.upstreamN.Load())
}
