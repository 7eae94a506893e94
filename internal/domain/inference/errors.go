package inference

import "fmt"

// UpstreamError describes a failed call to the inference service. StatusCode
// is zero for transport failures and timeouts.
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inference service returned %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("inference service unreachable: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
