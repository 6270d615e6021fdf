package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/argon2"
)

// Encrypted snapshot layout: [16-byte salt][12-byte nonce][AES-256-GCM ciphertext].
const (
	saltSize  = 16
	nonceSize = 12
)

// deriveKey stretches the passphrase into an AES-256 key with Argon2id.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 3, 64*1024, 4, 32)
}

// EncryptFile writes an encrypted copy of src to dst. A fresh salt and
// nonce are generated per file and stored in the header.
func EncryptFile(src, dst, passphrase string) error {
	plaintext, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	header := make([]byte, saltSize+nonceSize)
	if _, err := io.ReadFull(rand.Reader, header); err != nil {
		return fmt.Errorf("generate salt and nonce: %w", err)
	}
	salt, nonce := header[:saltSize], header[saltSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return err
	}

	out := gcm.Seal(header, nonce, plaintext, nil)
	if err := os.WriteFile(dst, out, 0600); err != nil {
		return fmt.Errorf("write encrypted snapshot: %w", err)
	}
	return nil
}

// DecryptFile reverses EncryptFile, reading the salt and nonce from the
// file header.
func DecryptFile(src, dst, passphrase string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read encrypted snapshot: %w", err)
	}
	if len(data) < saltSize+nonceSize {
		return fmt.Errorf("encrypted snapshot truncated")
	}
	salt := data[:saltSize]
	nonce := data[saltSize : saltSize+nonceSize]
	ciphertext := data[saltSize+nonceSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("decrypt snapshot: %w", err)
	}
	if err := os.WriteFile(dst, plaintext, 0600); err != nil {
		return fmt.Errorf("write decrypted snapshot: %w", err)
	}
	return nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
