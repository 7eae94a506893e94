// Package api is the client for the BioSight gateway.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultCookieName matches the gateway's default session cookie.
const DefaultCookieName = "biosight_session"

const maxReplyBytes = 4 << 20

var (
	// ErrTransport covers connection failures and replies that are not JSON.
	// A submission that fails this way should be queued and retried.
	ErrTransport = errors.New("gateway unreachable")
	// ErrInvalidUpload matches a RejectedError for a specimen the gateway
	// will never accept.
	ErrInvalidUpload = errors.New("specimen rejected")
)

// RejectedError is a well-formed {success:false} reply.
type RejectedError struct {
	Status  int
	Message string
	// Code is the upstream inference status on a 502, zero otherwise.
	Code int
	// RetryAfter is the wait the gateway asked for on a 429, zero if unset.
	RetryAfter time.Duration
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway %d: %s", e.Status, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrInvalidUpload && e.Status == http.StatusBadRequest
}

// RateLimited reports whether the gateway refused because of its cooldown.
func (e *RejectedError) RateLimited() bool { return e.Status == http.StatusTooManyRequests }

// Specimen is an image file to submit.
type Specimen struct {
	Filename string
	Data     []byte
}

type SubmitResult struct {
	Interpretation json.RawMessage
	ImageID        string
}

type HistoryEntry struct {
	ID             string    `json:"id"`
	ImagePath      string    `json:"image_path"`
	Interpretation string    `json:"interpretation"`
	CreatedAt      time.Time `json:"created_at"`
}

type envelope struct {
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	Code           int             `json:"code"`
	Accepted       bool            `json:"accepted"`
	Interpretation json.RawMessage `json:"interpretation"`
	ImageID        string          `json:"image_id"`
	History        []HistoryEntry  `json:"history"`
}

// Client talks to one gateway and keeps its session cookie in a jar.
type Client struct {
	BaseURL    *url.URL
	CookieName string
	HTTP       *http.Client
}

func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseURL:    u,
		CookieName: DefaultCookieName,
		HTTP:       &http.Client{Timeout: timeout, Jar: jar},
	}, nil
}

// SessionToken returns the current session cookie value, if any.
func (c *Client) SessionToken() string {
	if c.HTTP.Jar == nil {
		return ""
	}
	for _, ck := range c.HTTP.Jar.Cookies(c.BaseURL) {
		if ck.Name == c.CookieName {
			return ck.Value
		}
	}
	return ""
}

// SetSessionToken restores a session cookie saved by a previous run.
func (c *Client) SetSessionToken(token string) {
	if token == "" || c.HTTP.Jar == nil {
		return
	}
	c.HTTP.Jar.SetCookies(c.BaseURL, []*http.Cookie{{Name: c.CookieName, Value: token, Path: "/"}})
}

// Ping reports whether the gateway answers its liveness probe.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/health", nil), nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReplyBytes))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health returned %d", ErrTransport, resp.StatusCode)
	}
	return nil
}

func (c *Client) ConsentStatus(ctx context.Context) (bool, error) {
	env, err := c.do(ctx, http.MethodGet, c.endpoint("/consent", nil), nil, "")
	if err != nil {
		return false, err
	}
	return env.Accepted, nil
}

func (c *Client) AcceptConsent(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, c.endpoint("/consent", nil), nil, "")
	return err
}

// Submit uploads one specimen for analysis.
func (c *Client) Submit(ctx context.Context, s Specimen) (*SubmitResult, error) {
	body, contentType, err := encodeSpecimen(s)
	if err != nil {
		return nil, err
	}
	env, err := c.do(ctx, http.MethodPost, c.endpoint("/process", nil), body, contentType)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Interpretation: env.Interpretation, ImageID: env.ImageID}, nil
}

func (c *Client) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	env, err := c.do(ctx, http.MethodGet, c.endpoint("/history", q), nil, "")
	if err != nil {
		return nil, err
	}
	return env.History, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.BaseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader, contentType string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read reply: %v", ErrTransport, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: non-JSON reply (status %d)", ErrTransport, resp.StatusCode)
	}
	if !env.Success {
		return nil, &RejectedError{
			Status:     resp.StatusCode,
			Message:    env.Message,
			Code:       env.Code,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return &env, nil
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func encodeSpecimen(s Specimen) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, s.Filename))
	h.Set("Content-Type", mimetype.Detect(s.Data).String())

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(s.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
