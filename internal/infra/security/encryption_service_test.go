//go:build !integration

package security

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

const rawKey = "0123456789abcdef0123456789abcdef"

func TestEncryptionService_RoundTrip(t *testing.T) {
	svc, err := NewEncryptionService(rawKey)
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := svc.Encrypt("so, uh, tell me about a time you failed")
	if err != nil {
		t.Fatal(err)
	}
	if !IsSealed(sealed) || strings.Contains(sealed, "failed") {
		t.Fatalf("value not sealed: %q", sealed)
	}
	again, _ := svc.Encrypt("so, uh, tell me about a time you failed")
	if again == sealed {
		t.Fatalf("nonce must differ per value")
	}
	plain, err := svc.Decrypt(sealed)
	if err != nil || plain != "so, uh, tell me about a time you failed" {
		t.Fatalf("Decrypt = %q, %v", plain, err)
	}
}

func TestEncryptionService_PlainValuesPassThrough(t *testing.T) {
	svc, _ := NewEncryptionService(rawKey)
	got, err := svc.Decrypt("legacy transcript")
	if err != nil || got != "legacy transcript" {
		t.Fatalf("Decrypt = %q, %v", got, err)
	}
}

func TestEncryptionService_Tampered(t *testing.T) {
	svc, _ := NewEncryptionService(rawKey)
	sealed, _ := svc.Encrypt("secret")
	other, _ := NewEncryptionService(strings.Repeat("k", 32))
	if _, err := other.Decrypt(sealed); !errors.Is(err, ErrCiphertext) {
		t.Fatalf("expected ErrCiphertext with the wrong key, got %v", err)
	}
	if _, err := svc.Decrypt(sealedPrefix + "!!"); !errors.Is(err, ErrCiphertext) {
		t.Fatalf("expected ErrCiphertext for bad base64, got %v", err)
	}
}

func TestNewEncryptionService_Keys(t *testing.T) {
	cases := []struct {
		name string
		key  string
		ok   bool
	}{
		{"raw 32", rawKey, true},
		{"raw 16", rawKey[:16], true},
		{"base64 32", "base64:" + base64.StdEncoding.EncodeToString([]byte(rawKey)), true},
		{"bad base64", "base64:***", false},
		{"too short", "short", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEncryptionService(tc.key)
			if (err == nil) != tc.ok {
				t.Fatalf("err = %v, want ok=%v", err, tc.ok)
			}
		})
	}
}
