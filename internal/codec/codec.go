// Package codec encrypts and decrypts message bodies with the single
// server-held key. Every call to Encrypt draws a fresh random nonce, and the
// nonce is returned separately from the ciphertext so both can be stored
// side by side.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of the symmetric key in bytes.
const KeySize = 32

const (
	AlgorithmAESGCM           = "aes-256-gcm"
	AlgorithmXChaCha20Poly1305 = "xchacha20-poly1305"
)

var (
	// ErrDecryption matches every *DecryptionError.
	ErrDecryption = errors.New("decryption failed")
	// ErrInvalidKey is returned when key material has the wrong size or encoding.
	ErrInvalidKey = errors.New("invalid encryption key")
)

// DecryptionError describes why a stored body could not be opened.
// It never carries key material.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decryption failed: %s: %v", e.Reason, e.Err)
	}
	return "decryption failed: " + e.Reason
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDecryption) match any DecryptionError.
func (e *DecryptionError) Is(target error) bool { return target == ErrDecryption }

// Codec is a stateless AEAD transform keyed by one process-wide key.
// It is safe for concurrent use.
type Codec struct {
	aead      cipher.AEAD
	algorithm string
	random    io.Reader
}

// New builds a Codec for the given algorithm. An empty algorithm selects
// AES-256-GCM.
func New(key []byte, algorithm string) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes (got %d): %w", KeySize, len(key), ErrInvalidKey)
	}
	if algorithm == "" {
		algorithm = AlgorithmAESGCM
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch algorithm {
	case AlgorithmAESGCM:
		block, berr := aes.NewCipher(key)
		if berr != nil {
			return nil, fmt.Errorf("create AES cipher: %w", berr)
		}
		aead, err = cipher.NewGCM(block)
	case AlgorithmXChaCha20Poly1305:
		aead, err = chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", algorithm, err)
	}

	return &Codec{aead: aead, algorithm: algorithm, random: rand.Reader}, nil
}

// Algorithm reports the configured cipher name.
func (c *Codec) Algorithm() string { return c.algorithm }

// NonceSize is the nonce length this codec produces and expects.
func (c *Codec) NonceSize() int { return c.aead.NonceSize() }

// Encrypt seals plaintext under a freshly generated nonce.
func (c *Codec) Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext = c.aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens a ciphertext produced by Encrypt. Any malformed input or
// authentication failure yields a *DecryptionError.
func (c *Codec) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	if len(nonce) != c.aead.NonceSize() {
		return nil, &DecryptionError{
			Reason: fmt.Sprintf("nonce must be %d bytes (got %d)", c.aead.NonceSize(), len(nonce)),
		}
	}
	if len(ciphertext) < c.aead.Overhead() {
		return nil, &DecryptionError{Reason: "ciphertext too short"}
	}
	plain, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &DecryptionError{Reason: "authentication failed", Err: err}
	}
	if plain == nil {
		plain = []byte{}
	}
	return plain, nil
}

// ParseKey decodes a key given as 64 hex characters or as base64 (standard or
// URL alphabet, padded or raw). The returned error never echoes the input.
func ParseKey(encoded string) ([]byte, error) {
	s := strings.TrimSpace(encoded)
	if s == "" {
		return nil, fmt.Errorf("key is empty: %w", ErrInvalidKey)
	}

	if len(s) == hex.EncodedLen(KeySize) {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		key, err := enc.DecodeString(s)
		if err == nil && len(key) == KeySize {
			return key, nil
		}
	}

	return nil, fmt.Errorf("key must decode to %d bytes from hex or base64: %w", KeySize, ErrInvalidKey)
}

// GenerateKey returns a fresh random key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}
