// Package crypto seals small secrets, such as TOTP seeds, before they are
// written to the database.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// envelopeV1 prefixes every sealed value so the format can change later
// without guessing at stored bytes.
const envelopeV1 byte = 1

var (
	ErrMalformedEnvelope = errors.New("sealed value is malformed")
	ErrUnknownEnvelope   = errors.New("sealed value has an unknown version")
)

// Box seals values with XChaCha20-Poly1305. A Box built without a key is
// unconfigured and passes values through unchanged.
type Box struct {
	aead cipher.AEAD
	aad  []byte
}

// NewBox builds a Box from a 32 byte key given as hex, base64 or raw bytes.
// The purpose is bound into every seal so a value sealed for one column
// cannot be opened as another.
func NewBox(key, purpose string) (*Box, error) {
	if key == "" {
		return &Box{}, nil
	}
	decoded := decodeKey(key)
	if len(decoded) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("DATA_ENCRYPTION_KEY must be %d bytes after decoding, got %d", chacha20poly1305.KeySize, len(decoded))
	}
	aead, err := chacha20poly1305.NewX(decoded)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Box{aead: aead, aad: []byte(purpose)}, nil
}

func (b *Box) Configured() bool {
	return b != nil && b.aead != nil
}

// Seal returns version || nonce || ciphertext. Empty input seals to nil.
func (b *Box) Seal(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	if !b.Configured() {
		return []byte(value), nil
	}
	nonceSize := b.aead.NonceSize()
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(value)+b.aead.Overhead())
	out[0] = envelopeV1
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return b.aead.Seal(out, out[1:], []byte(value), b.aad), nil
}

func (b *Box) Open(sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	if !b.Configured() {
		return string(sealed), nil
	}
	if sealed[0] != envelopeV1 {
		return "", ErrUnknownEnvelope
	}
	nonceSize := b.aead.NonceSize()
	if len(sealed) < 1+nonceSize+b.aead.Overhead() {
		return "", ErrMalformedEnvelope
	}
	nonce, body := sealed[1:1+nonceSize], sealed[1+nonceSize:]
	plain, err := b.aead.Open(nil, nonce, body, b.aad)
	if err != nil {
		return "", fmt.Errorf("open sealed value: %w", err)
	}
	return string(plain), nil
}

func decodeKey(raw string) []byte {
	if len(raw) == hex.EncodedLen(chacha20poly1305.KeySize) {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded
		}
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(raw); err == nil && len(decoded) == chacha20poly1305.KeySize {
			return decoded
		}
	}
	return []byte(raw)
}
