package crypto

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := NewEncryptor([]byte("test-key-material"))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"simple password", "hunter2"},
		{"oauth refresh token", "1//0gabcdefghijklmnopqrstuvwxyz-ABCDEFG"},
		{"unicode", "pässwörd-メール"},
		{"empty", ""},
		{"long", strings.Repeat("secret", 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := enc.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if tt.plaintext != "" && ct == tt.plaintext {
				t.Fatal("ciphertext equals plaintext")
			}

			got, err := enc.Decrypt(ct)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if got != tt.plaintext {
				t.Errorf("round trip = %q, want %q", got, tt.plaintext)
			}
		})
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	enc, _ := NewEncryptor([]byte("test-key-material"))

	a, _ := enc.Encrypt("same secret")
	b, _ := enc.Encrypt("same secret")
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	enc, _ := NewEncryptor([]byte("test-key-material"))

	ct, _ := enc.Encrypt("imap password")
	tampered := "A" + ct[1:]
	if tampered == ct {
		tampered = "B" + ct[1:]
	}

	if _, err := enc.Decrypt(tampered); err == nil {
		t.Error("tampered ciphertext decrypted without error")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	enc1, _ := NewEncryptor([]byte("key-one"))
	enc2, _ := NewEncryptor([]byte("key-two"))

	ct, _ := enc1.Encrypt("imap password")
	if _, err := enc2.Decrypt(ct); err == nil {
		t.Error("ciphertext decrypted with the wrong key")
	}
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	enc, _ := NewEncryptor([]byte("test-key-material"))

	if _, err := enc.Decrypt("AAAA"); err == nil {
		t.Error("short ciphertext accepted")
	}
}

func TestNewEncryptorRejectsEmptyKey(t *testing.T) {
	if _, err := NewEncryptor(nil); err == nil {
		t.Error("empty key accepted")
	}
}
