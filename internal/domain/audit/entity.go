package audit

import "time"

// Event types
const (
	EventUploadSuccess   = "UPLOAD_SUCCESS"
	EventConsentRecorded = "CONSENT_RECORDED"
)

// Event represents an append-only system_audit row
type Event struct {
	ID        int64     `json:"id"`
	EventType string    `json:"event_type"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}
