package inference

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Result is either Success or MalformedResponse.
type Result interface {
	// Plaintext is the interpretation text that gets encrypted at rest.
	Plaintext() string
	// Payload is the interpretation as it is returned to the client.
	Payload() json.RawMessage
	isResult()
}

// Success carries the "interpretation" field of the service response,
// which may be a JSON string or a JSON object.
type Success struct {
	Interpretation json.RawMessage
}

// MalformedResponse carries a JSON body that lacked the interpretation field.
type MalformedResponse struct {
	Raw []byte
}

func (Success) isResult()           {}
func (MalformedResponse) isResult() {}

func (s Success) Plaintext() string {
	var text string
	if err := json.Unmarshal(s.Interpretation, &text); err == nil {
		return text
	}
	return string(s.Interpretation)
}

func (s Success) Payload() json.RawMessage { return s.Interpretation }

func (m MalformedResponse) Plaintext() string { return string(m.Raw) }

func (m MalformedResponse) Payload() json.RawMessage {
	b, _ := json.Marshal(string(m.Raw))
	return b
}

// ParseBody classifies a 200 response body. Bodies that are not JSON are an
// error; JSON without a usable interpretation field falls back to the raw
// body.
func ParseBody(body []byte) (Result, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("response is not valid JSON")
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		// valid JSON but not an object
		return MalformedResponse{Raw: body}, nil
	}
	v, ok := envelope["interpretation"]
	if !ok || len(v) == 0 || string(v) == "null" {
		return MalformedResponse{Raw: body}, nil
	}
	return Success{Interpretation: v}, nil
}
