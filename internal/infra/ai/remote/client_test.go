package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/biosight/internal/domain/inference"
)

var specimen = inference.Specimen{Filename: "abc.png", ContentType: "image/png", Data: []byte("pngdata")}

func TestAnalyzeSendsMultipartFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "abc.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		assert.Equal(t, []byte("pngdata"), data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"interpretation":"X"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).Analyze(context.Background(), specimen)
	require.NoError(t, err)
	assert.Equal(t, "X", res.Plaintext())
}

func TestAnalyzeFallsBackToRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"summary":"no wrapper"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).Analyze(context.Background(), specimen)
	require.NoError(t, err)
	_, ok := res.(inference.MalformedResponse)
	assert.True(t, ok)
	assert.Equal(t, `{"summary":"no wrapper"}`, res.Plaintext())
}

func TestAnalyzeUpstreamFailures(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode int
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }, 500},
		{"non json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>oops</html>")) }, 200},
		{"slow", func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			_, _ = w.Write([]byte(`{"interpretation":"late"}`))
		}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, 100*time.Millisecond).Analyze(context.Background(), specimen)
			var ue *inference.UpstreamError
			require.True(t, errors.As(err, &ue), "got %v", err)
			assert.Equal(t, tt.wantCode, ue.StatusCode)
		})
	}
}

func TestAnalyzeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Analyze(context.Background(), specimen)
	var ue *inference.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Zero(t, ue.StatusCode)
}
