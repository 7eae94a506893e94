package inference

import "context"

// Specimen is the image handed to an inference backend.
type Specimen struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Client runs inference on one specimen. A returned error means the service
// was unreachable, timed out, answered non-200 or answered non-JSON.
type Client interface {
	Analyze(ctx context.Context, s Specimen) (Result, error)
}
