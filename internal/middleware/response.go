package middleware

import (
	"encoding/json"
	"net/http"
	"time"
)

// WriteEnvelope writes the API reply shape {success, message?, timestamp, ...data}.
func WriteEnvelope(w http.ResponseWriter, status int, success bool, message string, data map[string]any) {
	body := make(map[string]any, len(data)+3)
	for k, v := range data {
		body[k] = v
	}
	body["success"] = success
	body["timestamp"] = time.Now().Unix()
	if message != "" {
		body["message"] = message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
