package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/bryanwahyu/biosight/internal/domain/inference"
)

// maxResponseBytes caps how much of an inference reply is read.
const maxResponseBytes = 4 << 20

// Client posts specimens to an external inference service as multipart
// form data (field "file") and parses the JSON reply.
type Client struct {
	URL  string
	HTTP *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{URL: url, HTTP: &http.Client{Timeout: timeout}}
}

func (c *Client) Analyze(ctx context.Context, s inference.Specimen) (inference.Result, error) {
	body, contentType, err := encodeMultipart(s)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &inference.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &inference.UpstreamError{Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &inference.UpstreamError{StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	res, err := inference.ParseBody(raw)
	if err != nil {
		return nil, &inference.UpstreamError{StatusCode: resp.StatusCode, Err: err}
	}
	return res, nil
}

func encodeMultipart(s inference.Specimen) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, s.Filename))
	ct := s.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

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

var _ inference.Client = (*Client)(nil)
