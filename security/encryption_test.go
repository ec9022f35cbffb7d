package security

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("GenerateKey() returned key of length %d, want %d", len(key), KeySize)
	}

	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if bytes.Equal(key, key2) {
		t.Error("GenerateKey() returned identical keys")
	}
}

func TestNewEncryptor(t *testing.T) {
	tests := []struct {
		name       string
		key        []byte
		wantErr    bool
		wantEnable bool
	}{
		{"valid 32-byte key", make([]byte, 32), false, true},
		{"nil key (disabled)", nil, false, false},
		{"empty key (disabled)", []byte{}, false, false},
		{"16-byte key", make([]byte, 16), true, false},
		{"64-byte key", make([]byte, 64), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncryptor(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEncryptor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && enc.IsEnabled() != tt.wantEnable {
				t.Errorf("IsEnabled() = %v, want %v", enc.IsEnabled(), tt.wantEnable)
			}
		})
	}
}

func TestEncryptor_RoundTrip(t *testing.T) {
	key, _ := GenerateKey()
	enc, err := NewEncryptor(key)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	for _, plaintext := range []string{"", "eyJhbGciOiJSUzI1NiJ9.payload.sig", strings.Repeat("x", 4096)} {
		sealed, err := enc.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if plaintext != "" && sealed == plaintext {
			t.Error("Encrypt() returned plaintext")
		}

		opened, err := enc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if opened != plaintext {
			t.Errorf("Decrypt() = %q, want %q", opened, plaintext)
		}
	}
}

func TestEncryptor_NonceIsRandom(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	a, _ := enc.Encrypt("same")
	b, _ := enc.Encrypt("same")
	if a == b {
		t.Error("two encryptions of the same plaintext should differ")
	}
}

func TestEncryptor_Disabled(t *testing.T) {
	enc, _ := NewEncryptor(nil)
	got, err := enc.Encrypt("secret")
	if err != nil || got != "secret" {
		t.Errorf("disabled Encrypt() = %q, %v", got, err)
	}
	got, err = enc.Decrypt("secret")
	if err != nil || got != "secret" {
		t.Errorf("disabled Decrypt() = %q, %v", got, err)
	}

	var nilEnc *Encryptor
	if nilEnc.IsEnabled() {
		t.Error("nil encryptor should be disabled")
	}
	if got, _ := nilEnc.Encrypt("x"); got != "x" {
		t.Error("nil encryptor should pass values through")
	}
}

func TestEncryptor_DecryptErrors(t *testing.T) {
	key, _ := GenerateKey()
	enc, _ := NewEncryptor(key)

	otherKey, _ := GenerateKey()
	other, _ := NewEncryptor(otherKey)
	sealed, _ := other.Encrypt("secret")

	tests := []struct {
		name  string
		input string
	}{
		{"not base64", "!!!"},
		{"too short", KeyToBase64([]byte{1, 2, 3})},
		{"wrong key", sealed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := enc.Decrypt(tt.input); err == nil {
				t.Error("Decrypt() expected error")
			}
		})
	}
}

func TestKeyFromBase64(t *testing.T) {
	key, _ := GenerateKey()
	got, err := KeyFromBase64(KeyToBase64(key))
	if err != nil {
		t.Fatalf("KeyFromBase64() error = %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Error("KeyFromBase64() did not round trip")
	}

	if _, err := KeyFromBase64("not base64!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := KeyFromBase64(KeyToBase64(make([]byte, 16))); err == nil {
		t.Error("expected error for short key")
	}
}

func TestKeyFromPassphrase(t *testing.T) {
	a, err := KeyFromPassphrase("correct horse", "client-id")
	if err != nil {
		t.Fatalf("KeyFromPassphrase() error = %v", err)
	}
	if len(a) != KeySize {
		t.Fatalf("key length = %d, want %d", len(a), KeySize)
	}

	b, _ := KeyFromPassphrase("correct horse", "client-id")
	if !bytes.Equal(a, b) {
		t.Error("same passphrase and salt should derive the same key")
	}

	c, _ := KeyFromPassphrase("correct horse", "other-client")
	if bytes.Equal(a, c) {
		t.Error("different salt should derive a different key")
	}

	if _, err := KeyFromPassphrase("", "salt"); err == nil {
		t.Error("empty passphrase should fail")
	}
	if _, err := KeyFromPassphrase("p", ""); err == nil {
		t.Error("empty salt should fail")
	}
}
