package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// AESGCMNonceSize is the standard nonce size for GCM (12 bytes)
	AESGCMNonceSize = 12
	// KeySizeAES256 is the key size for AES-256 (32 bytes)
	KeySizeAES256 = 32
	// saltSize is the per-seal HKDF salt length
	saltSize = 16
)

// Box seals and opens short secrets (decoy codes) with AES-256-GCM. The
// per-seal key is derived from the master secret and a random salt via
// HKDF-SHA256, so two seals of the same plaintext never match.
// Format: Salt (16 bytes) || Nonce (12 bytes) || Ciphertext (including tag)
type Box struct {
	master []byte
}

// NewBox creates a Box from the configured master secret.
func NewBox(masterSecret string) (*Box, error) {
	if masterSecret == "" {
		return nil, errors.New("master secret is empty")
	}
	return &Box{master: []byte(masterSecret)}, nil
}

// Seal encrypts the plaintext.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := deriveKey(b.master, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	nonce := make([]byte, AESGCMNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Salt doubles as AAD to bind the derivation to this ciphertext.
	ciphertext := gcm.Seal(nil, nonce, plaintext, salt)

	result := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	result = append(result, salt...)
	result = append(result, nonce...)
	result = append(result, ciphertext...)

	return result, nil
}

// Open decrypts a sealed secret.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < saltSize+AESGCMNonceSize {
		return nil, errors.New("sealed secret too short")
	}

	salt := sealed[:saltSize]
	nonce := sealed[saltSize : saltSize+AESGCMNonceSize]
	ciphertext := sealed[saltSize+AESGCMNonceSize:]

	key, err := deriveKey(b.master, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// deriveKey derives the AES-256 key from the master secret and salt using HKDF.
func deriveKey(secret, salt []byte) ([]byte, error) {
	info := []byte("guard-decoy-code-v1")

	kdf := hkdf.New(sha256.New, secret, salt, info)

	key := make([]byte, KeySizeAES256)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}

	return key, nil
}
