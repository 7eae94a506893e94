package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/bryanwahyu/biosight/internal/domain/analysis"
)

const hkdfInfo = "biosight/interpretation/v1"

// Codec seals interpretations with AES-256-GCM. Blob layout: nonce || ciphertext+tag.
type Codec struct {
	aead cipher.AEAD
}

// New derives a 256-bit key from secret via HKDF-SHA256.
func New(secret string) (*Codec, error) {
	if len(secret) < 32 {
		return nil, errors.New("codec: secret must be at least 32 bytes")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("codec: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encrypt uses a fresh random nonce per call.
func (c *Codec) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("codec: nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt fails with analysis.ErrDecryption on a short blob, a wrong key or
// tampered data.
func (c *Codec) Decrypt(blob []byte) (string, error) {
	ns := c.aead.NonceSize()
	if len(blob) < ns+c.aead.Overhead() {
		return "", fmt.Errorf("%w: blob too short", analysis.ErrDecryption)
	}
	plain, err := c.aead.Open(nil, blob[:ns], blob[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", analysis.ErrDecryption, err)
	}
	return string(plain), nil
}

var _ analysis.Sealer = (*Codec)(nil)
