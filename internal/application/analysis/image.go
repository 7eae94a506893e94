package analysis

import "io"

// Image is an opened specimen; the caller closes Body.
type Image struct {
	Body        io.ReadCloser
	ContentType string
}
