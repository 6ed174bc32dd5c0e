// File: internal/infra/security/encryption_service.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks values written by Encrypt so rows stored before
// encryption was enabled still read back as plain text.
const sealedPrefix = "enc:v1:"

var ErrCiphertext = errors.New("malformed ciphertext")

// EncryptionService seals sensitive text (raw interview transcripts) at rest
// with AES-GCM and a fresh nonce per value.
type EncryptionService struct {
	gcm cipher.AEAD
}

// NewEncryptionService accepts a raw 16/24/32-byte key, or one written as
// "base64:<std encoding>".
func NewEncryptionService(key string) (*EncryptionService, error) {
	k, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return &EncryptionService{gcm: gcm}, nil
}

func parseKey(key string) ([]byte, error) {
	k := []byte(key)
	if encoded, ok := strings.CutPrefix(key, "base64:"); ok {
		b, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		k = b
	}
	switch len(k) {
	case 16, 24, 32:
		return k, nil
	}
	return nil, fmt.Errorf("encryption key must be 16, 24 or 32 bytes; got %d", len(k))
}

// Encrypt returns sealedPrefix + base64(nonce || ciphertext).
func (e *EncryptionService) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	ct := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. Values without the prefix are returned as is.
func (e *EncryptionService) Decrypt(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, sealedPrefix)
	if !ok {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	ns := e.gcm.NonceSize()
	if len(data) < ns {
		return "", fmt.Errorf("%w: too short", ErrCiphertext)
	}
	pt, err := e.gcm.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCiphertext, err)
	}
	return string(pt), nil
}

// IsSealed reports whether value came from Encrypt.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, sealedPrefix)
}
