package sealbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	nonceSize = 12
	tagSize   = 16
)

// IntegrityError indicates a sealed token that failed authentication or is
// structurally malformed. Callers are expected to treat it the same as an
// absent value rather than fail the request.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("sealed token rejected: %s", e.Reason)
}

// Codec seals and opens byte payloads using AES-256-GCM with a key derived
// from a shared secret. The derivation is a plain SHA-256 of the secret, so
// any process configured with the same secret can open tokens sealed by
// another process.
type Codec struct {
	key []byte
}

// NewCodec derives the symmetric key from secret.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("sealbox: secret cannot be empty")
	}
	hash := sha256.Sum256([]byte(secret))
	return &Codec{key: hash[:]}, nil
}

// Seal encrypts plaintext and returns a URL-safe token laid out as
// nonce || tag || ciphertext. A fresh nonce is generated on every call.
func (c *Codec) Seal(plaintext []byte) (string, error) {
	gcm, err := c.newGCM()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// gcm.Seal appends the tag after the ciphertext; the token format keeps
	// the tag in front so offsets stay fixed regardless of payload length.
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	token := make([]byte, 0, nonceSize+tagSize+len(ciphertext))
	token = append(token, nonce...)
	token = append(token, tag...)
	token = append(token, ciphertext...)

	return base64.RawURLEncoding.EncodeToString(token), nil
}

// SealString is a convenience wrapper around Seal.
func (c *Codec) SealString(plaintext string) (string, error) {
	return c.Seal([]byte(plaintext))
}

// Open decodes a token produced by Seal and returns the plaintext. Any
// malformed token, truncated payload, wrong key, or failed tag check
// returns an *IntegrityError.
func (c *Codec) Open(token string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, &IntegrityError{Reason: "invalid encoding"}
	}

	if len(raw) < nonceSize+tagSize {
		return nil, &IntegrityError{Reason: "token too short"}
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ciphertext := raw[nonceSize+tagSize:]

	gcm, err := c.newGCM()
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, &IntegrityError{Reason: "authentication failed"}
	}

	return plaintext, nil
}

// OpenString is a convenience wrapper around Open.
func (c *Codec) OpenString(token string) (string, error) {
	plaintext, err := c.Open(token)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (c *Codec) newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
