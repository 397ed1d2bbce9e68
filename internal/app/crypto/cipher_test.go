package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, MasterKeySize)
	c, err := NewCredentialCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	plaintext := []byte("sk-live-abc1234")
	blob, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	got, err := c.Decrypt(blob)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, MasterKeySize)
	c, err := NewCredentialCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	a, err := c.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("encrypt a: %v", err)
	}
	b, err := c.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("encrypt b: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("expected distinct ciphertexts from distinct nonces")
	}
}

func TestDecryptFailsOnTamper(t *testing.T) {
	key := bytes.Repeat([]byte{0x7f}, MasterKeySize)
	c, err := NewCredentialCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}

	blob, err := c.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	tampered := append([]byte(nil), blob...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := c.Decrypt(tampered); err == nil {
		t.Fatal("expected decrypt to fail on tampered ciphertext")
	}
}

func TestCredentialAndProfileCiphersAreIndependent(t *testing.T) {
	key := bytes.Repeat([]byte{0x55}, MasterKeySize)
	cred, err := NewCredentialCipher(key)
	if err != nil {
		t.Fatalf("credential cipher: %v", err)
	}
	prof, err := NewProfileSecretCipher(key)
	if err != nil {
		t.Fatalf("profile cipher: %v", err)
	}

	blob, err := cred.Encrypt([]byte("value"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := prof.Decrypt(blob); err == nil {
		t.Fatal("expected cross-purpose decrypt to fail")
	}
}
