// Package fieldcrypt provides authenticated symmetric encryption for
// sensitive fields at rest, a deterministic digest for equality-searchable
// fields, and display masking helpers.
//
// The AES-256-GCM key is derived once from the configured seed via SHA-256.
// Key material never appears in errors or log output.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
)

// ErrDecryptionFailed is returned when a ciphertext was tampered with,
// truncated, or produced under a different key. Decryption fails closed:
// no partial plaintext is ever returned.
var ErrDecryptionFailed = errors.New("decryption failed")

// Sealer encrypts and decrypts string fields with AES-256-GCM. It is
// immutable after construction and safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// New derives a 256-bit key from seed and returns a Sealer.
func New(seed string) (*Sealer, error) {
	if seed == "" {
		return nil, errors.New("empty encryption seed")
	}

	key := sha256.Sum256([]byte(seed))

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &Sealer{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns
// base64url(nonce || ciphertext).
func (s *Sealer) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses [Sealer.Encrypt]. Any authentication failure, malformed
// encoding, or key mismatch yields ErrDecryptionFailed.
func (s *Sealer) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	if len(raw) < s.aead.NonceSize() {
		return "", ErrDecryptionFailed
	}

	nonce, sealed := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// Digest returns the hex-encoded SHA-256 of data. Deterministic, for
// equality lookups on fields that are stored encrypted (account numbers).
func Digest(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}
