package specimen

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBytes is the upload cap (10 MiB).
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// ErrInvalidUpload matches every upload rejection below.
var ErrInvalidUpload = errors.New("invalid upload")

var (
	ErrMissingFile     error = &uploadError{"no image uploaded"}
	ErrFileTooLarge    error = &uploadError{"file too large"}
	ErrUnsupportedType error = &uploadError{"unsupported file type"}
)

type uploadError struct{ msg string }

func (e *uploadError) Error() string { return e.msg }

func (e *uploadError) Is(target error) bool { return target == ErrInvalidUpload }

// AllowedTypes maps detected MIME types to their canonical extension.
var AllowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// clientExtensions are the client extensions kept for each detected type.
var clientExtensions = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/webp": {".webp"},
}

// Upload is a file as received from the client.
type Upload struct {
	Filename string
	Size     int64
	Data     []byte
}

// Accepted is an upload that passed validation.
type Accepted struct {
	StoredName  string
	ContentType string
	Data        []byte
}

type Validator struct {
	MaxBytes int64
}

// Validate checks size and sniffed content type, then assigns a random
// stored name. The client's extension survives only when it is an image
// extension for the detected type.
func (v Validator) Validate(u Upload) (*Accepted, error) {
	maxBytes := v.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(u.Data) == 0 {
		return nil, ErrMissingFile
	}
	if u.Size > maxBytes || int64(len(u.Data)) > maxBytes {
		return nil, ErrFileTooLarge
	}

	detected := mimetype.Detect(u.Data)
	var contentType, canonicalExt string
	for mt, ext := range AllowedTypes {
		if detected.Is(mt) {
			contentType, canonicalExt = mt, ext
			break
		}
	}
	if contentType == "" {
		return nil, ErrUnsupportedType
	}

	name, err := RandomName(extensionOf(u.Filename, contentType, canonicalExt))
	if err != nil {
		return nil, err
	}
	return &Accepted{StoredName: name, ContentType: contentType, Data: u.Data}, nil
}

// RandomName returns 128 random bits as hex followed by ext.
func RandomName(ext string) (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate filename: %w", err)
	}
	return hex.EncodeToString(b[:]) + ext, nil
}

func extensionOf(filename, contentType, canonical string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	if slices.Contains(clientExtensions[contentType], ext) {
		return ext
	}
	return canonical
}

var storedNamePattern = regexp.MustCompile(`^[a-f0-9]{32}\.(jpg|jpeg|png|webp)$`)

// ValidStoredName reports whether name has the shape produced by RandomName.
func ValidStoredName(name string) bool {
	return storedNamePattern.MatchString(name)
}
