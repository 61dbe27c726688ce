// Package security provides at-rest protection for the binding store token
// and constant-time credential comparison for the admin surface.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters for the token KDF.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// ErrDecryptFailed is returned when the blob cannot be decrypted, typically
// because the passphrase is wrong or the blob is corrupted.
var ErrDecryptFailed = errors.New("token decryption failed")

// EncryptToken seals token with a key derived from passphrase. The result is
// base64(salt || nonce || ciphertext), suitable for an environment variable.
func EncryptToken(token, passphrase string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	gcm, err := deriveGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(token), nil)

	blob := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptToken opens a blob produced by EncryptToken.
func DecryptToken(blob, passphrase string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: invalid base64: %v", ErrDecryptFailed, err)
	}
	if len(raw) < saltLen {
		return "", fmt.Errorf("%w: blob too short", ErrDecryptFailed)
	}

	salt, rest := raw[:saltLen], raw[saltLen:]
	gcm, err := deriveGCM(passphrase, salt)
	if err != nil {
		return "", err
	}
	if len(rest) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: blob too short", ErrDecryptFailed)
	}

	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}

func deriveGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// SecureCompare reports whether a and b are equal without leaking the
// position of the first difference.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
