package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"

	"wagate/internal/constants"
	apperrors "wagate/internal/errors"
	"wagate/internal/models"

	"golang.org/x/crypto/pbkdf2"
)

// encryptor provides optional at-rest encryption for sensitive columns: QR
// payloads, message bodies and error texts. Disabled unless
// WAGATE_ENABLE_ENCRYPTION=true.
type encryptor struct {
	gcm cipher.AEAD
}

func newEncryptor() (*encryptor, error) {
	if os.Getenv("WAGATE_ENABLE_ENCRYPTION") != "true" {
		return &encryptor{gcm: nil}, nil
	}

	key, err := deriveKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &encryptor{gcm: gcm}, nil
}

func deriveKey() ([]byte, error) {
	secret := os.Getenv("WAGATE_ENCRYPTION_SECRET")
	if secret == "" {
		return nil, apperrors.New(apperrors.ErrCodeMissingConfig,
			"WAGATE_ENCRYPTION_SECRET environment variable is required when encryption is enabled")
	}
	if len(secret) < 32 {
		return nil, apperrors.New(apperrors.ErrCodeInvalidConfig,
			"encryption secret must be at least 32 characters long")
	}

	key := pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSalt), models.Iterations, models.KeySize, sha256.New)
	return key, nil
}

// encrypt returns the base64 nonce+ciphertext, or the plaintext unchanged when
// encryption is disabled.
func (e *encryptor) encrypt(plaintext string) (string, error) {
	if plaintext == "" || e.gcm == nil {
		return plaintext, nil
	}

	nonce := make([]byte, models.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

func (e *encryptor) decrypt(ciphertext string) (string, error) {
	if ciphertext == "" || e.gcm == nil {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < models.NonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, payload := data[:models.NonceSize], data[models.NonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, payload, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}
