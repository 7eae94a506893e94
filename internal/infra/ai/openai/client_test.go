package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/biosight/internal/domain/inference"
)

func completionServer(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
}

func TestAnalyzeReturnsModelJSON(t *testing.T) {
	var body map[string]any
	srv := completionServer(t, "```json\n{\"summary\":\"clear\"}\n```", &body)
	defer srv.Close()

	c := NewClientWithBaseURL("sk-test", "gpt-4o-mini", srv.URL+"/v1")
	res, err := c.Analyze(context.Background(), inference.Specimen{
		Filename: "a.png", ContentType: "image/png", Data: []byte{1, 2, 3},
	})
	require.NoError(t, err)

	succ, ok := res.(inference.Success)
	require.True(t, ok)
	assert.JSONEq(t, `{"summary":"clear"}`, string(succ.Interpretation))

	raw, _ := json.Marshal(body["messages"])
	assert.True(t, strings.Contains(string(raw), "data:image/png;base64,AQID"))
	assert.Equal(t, "gpt-4o-mini", body["model"])
}

func TestAnalyzeRejectsProse(t *testing.T) {
	srv := completionServer(t, "sorry, cannot help", nil)
	defer srv.Close()

	c := NewClientWithBaseURL("sk-test", "", srv.URL+"/v1")
	_, err := c.Analyze(context.Background(), inference.Specimen{Filename: "a.png", ContentType: "image/png", Data: []byte{1}})
	assert.Error(t, err)
}
