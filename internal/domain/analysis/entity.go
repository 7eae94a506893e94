package analysis

import "time"

// RecordID identifier type
type RecordID string

// Record is one persisted analysis. Interpretation is ciphertext; plaintext
// never reaches the repository.
type Record struct {
	ID                      RecordID  `json:"id"`
	SessionHash             string    `json:"session_hash"`
	ImageRef                string    `json:"image_ref"`
	EncryptedInterpretation []byte    `json:"-"`
	CreatedAt               time.Time `json:"created_at"`
}

// HistoryEntry is a decrypted Record as returned to the session owner.
type HistoryEntry struct {
	ID             RecordID  `json:"id"`
	ImagePath      string    `json:"image_path"`
	Interpretation string    `json:"interpretation"`
	CreatedAt      time.Time `json:"created_at"`
}
