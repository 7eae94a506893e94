package analysis

import "errors"

// Request-path failures, surfaced to the caller with a distinct status.
var (
	ErrUnauthorized        = errors.New("legal consent required")
	ErrRateLimited         = errors.New("analysis rate limit exceeded")
	ErrMethodNotAllowed    = errors.New("method not allowed")
	ErrStorageFailure      = errors.New("failed to store uploaded image")
	ErrUpstreamUnavailable = errors.New("inference service unavailable")
	ErrHistoryUnavailable  = errors.New("failed to fetch history")
	ErrImageNotFound       = errors.New("image not found")
)

// Best-effort failures. They are reported to the observer, never to the caller.
var (
	ErrDecryption       = errors.New("decryption failed")
	ErrPersistenceWrite = errors.New("persistence write failed")
)
