package prompt

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNotJSON       = errors.New("model returned non-JSON output")
	ErrNotRecognized = errors.New("subject matter not recognized as biomedical")
)

var fence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// ParseModelOutput strips markdown fences from raw model text and returns the
// JSON object it contains.
func ParseModelOutput(raw string) (json.RawMessage, error) {
	text := strings.TrimSpace(raw)
	if m := fence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, ErrNotJSON
	}
	if strings.Contains(text, NotRecognized) {
		return nil, ErrNotRecognized
	}
	return json.RawMessage(text), nil
}
