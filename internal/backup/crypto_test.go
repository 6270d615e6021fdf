package backup

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "family.db")
	enc := filepath.Join(dir, "family.db.enc")
	dec := filepath.Join(dir, "restored.db")

	original := []byte("task and ledger rows worth keeping")
	if err := os.WriteFile(src, original, 0600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	if err := EncryptFile(src, enc, "family-passphrase"); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	encrypted, err := os.ReadFile(enc)
	if err != nil {
		t.Fatalf("read encrypted: %v", err)
	}
	if bytes.Contains(encrypted, original) {
		t.Error("ciphertext contains plaintext")
	}
	if len(encrypted) <= saltSize+nonceSize {
		t.Errorf("encrypted size = %d, want more than header %d", len(encrypted), saltSize+nonceSize)
	}

	if err := DecryptFile(enc, dec, "family-passphrase"); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	restored, err := os.ReadFile(dec)
	if err != nil {
		t.Fatalf("read restored: %v", err)
	}
	if !bytes.Equal(restored, original) {
		t.Errorf("restored = %q, want %q", restored, original)
	}
}

func TestEncryptFreshSaltPerFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "family.db")
	if err := os.WriteFile(src, []byte("same content"), 0600); err != nil {
		t.Fatalf("write source: %v", err)
	}

	enc1 := filepath.Join(dir, "one.enc")
	enc2 := filepath.Join(dir, "two.enc")
	if err := EncryptFile(src, enc1, "pw"); err != nil {
		t.Fatalf("encrypt one: %v", err)
	}
	if err := EncryptFile(src, enc2, "pw"); err != nil {
		t.Fatalf("encrypt two: %v", err)
	}

	a, _ := os.ReadFile(enc1)
	b, _ := os.ReadFile(enc2)
	if bytes.Equal(a[:saltSize], b[:saltSize]) {
		t.Error("two encryptions reused the same salt")
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions produced identical output")
	}
}

func TestDeriveKeyStability(t *testing.T) {
	salt := bytes.Repeat([]byte{0x2a}, saltSize)

	if !bytes.Equal(deriveKey("pw", salt), deriveKey("pw", salt)) {
		t.Error("same passphrase and salt gave different keys")
	}
	if bytes.Equal(deriveKey("pw", salt), deriveKey("other", salt)) {
		t.Error("different passphrases gave the same key")
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "family.db")
	enc := filepath.Join(dir, "family.db.enc")
	if err := os.WriteFile(src, []byte("ledger"), 0600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := EncryptFile(src, enc, "right"); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if err := DecryptFile(enc, filepath.Join(dir, "out.db"), "wrong"); err == nil {
		t.Fatal("expected wrong passphrase to fail")
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "family.db")
	enc := filepath.Join(dir, "family.db.enc")
	if err := os.WriteFile(src, []byte("ledger"), 0600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := EncryptFile(src, enc, "pw"); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	data, _ := os.ReadFile(enc)
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(enc, data, 0600); err != nil {
		t.Fatalf("write tampered: %v", err)
	}

	if err := DecryptFile(enc, filepath.Join(dir, "out.db"), "pw"); err == nil {
		t.Fatal("expected tampered ciphertext to fail")
	}
}

func TestDecryptTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	enc := filepath.Join(dir, "short.enc")
	if err := os.WriteFile(enc, []byte("short"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := DecryptFile(enc, filepath.Join(dir, "out.db"), "pw"); err == nil {
		t.Fatal("expected truncated file to fail")
	}
}
