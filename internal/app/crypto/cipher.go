package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	aerr "github.com/ComputClaw/airlock/pkg/errors"
)

// Cipher performs authenticated encryption/decryption of opaque blobs.
// Storage layout: nonce (12B) || ciphertext || tag (16B), a single blob.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(blob []byte) ([]byte, error)
}

type aesGCMCipher struct {
	gcm cipher.AEAD
}

// NewCredentialCipher derives a purpose-scoped key from the master key via
// HKDF-SHA256 and returns a Cipher for credential values.
func NewCredentialCipher(masterKey []byte) (Cipher, error) {
	return newAEADCipher(masterKey, "airlock/credential")
}

// NewProfileSecretCipher derives a purpose-scoped key from the master key
// for encrypting profile key secrets.
func NewProfileSecretCipher(masterKey []byte) (Cipher, error) {
	return newAEADCipher(masterKey, "airlock/profile-secret")
}

func newAEADCipher(masterKey []byte, info string) (Cipher, error) {
	derived := make([]byte, 32)
	kdf := hkdf.New(sha256.New, masterKey, nil, []byte(info))
	if _, err := io.ReadFull(kdf, derived); err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, "derive key", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, "init aes cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, "init gcm", err)
	}
	return &aesGCMCipher{gcm: gcm}, nil
}

func (c *aesGCMCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, "generate nonce", err)
	}
	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *aesGCMCipher) Decrypt(blob []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(blob) < nonceSize {
		return nil, aerr.New(aerr.CodeBadCiphertext, "ciphertext too short")
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeBadCiphertext, "decrypt failed", err)
	}
	return plaintext, nil
}
