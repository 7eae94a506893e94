package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBody(t *testing.T) {
	t.Run("string interpretation", func(t *testing.T) {
		res, err := ParseBody([]byte(`{"interpretation":"X"}`))
		require.NoError(t, err)
		require.IsType(t, Success{}, res)
		assert.Equal(t, "X", res.Plaintext())
		assert.JSONEq(t, `"X"`, string(res.Payload()))
	})

	t.Run("object interpretation", func(t *testing.T) {
		res, err := ParseBody([]byte(`{"interpretation":{"summary":"ok"}}`))
		require.NoError(t, err)
		require.IsType(t, Success{}, res)
		assert.JSONEq(t, `{"summary":"ok"}`, res.Plaintext())
		assert.JSONEq(t, `{"summary":"ok"}`, string(res.Payload()))
	})

	t.Run("missing field falls back to raw body", func(t *testing.T) {
		res, err := ParseBody([]byte(`{"summary":"direct"}`))
		require.NoError(t, err)
		require.IsType(t, MalformedResponse{}, res)
		assert.Equal(t, `{"summary":"direct"}`, res.Plaintext())
		assert.JSONEq(t, `"{\"summary\":\"direct\"}"`, string(res.Payload()))
	})

	t.Run("null field falls back", func(t *testing.T) {
		res, err := ParseBody([]byte(`{"interpretation":null}`))
		require.NoError(t, err)
		assert.IsType(t, MalformedResponse{}, res)
	})

	t.Run("json array falls back", func(t *testing.T) {
		res, err := ParseBody([]byte(`[1,2]`))
		require.NoError(t, err)
		assert.IsType(t, MalformedResponse{}, res)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseBody([]byte(`<html>502 Bad Gateway</html>`))
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ParseBody([]byte("  \n"))
		assert.Error(t, err)
	})
}
