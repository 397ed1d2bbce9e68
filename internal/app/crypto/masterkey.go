// Package crypto implements Airlock's authenticated-encryption layer: the
// master key lifecycle and the AES-256-GCM envelope used for every
// encrypted credential value and profile secret.
package crypto

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	aerr "github.com/ComputClaw/airlock/pkg/errors"
)

// MasterKeySize is the length in bytes of the root key persisted on disk.
const MasterKeySize = 32

// LoadOrCreateMasterKey reads the 32-byte master key from path, generating
// and persisting a fresh one via the OS CSPRNG if the file does not exist.
// The file is written with owner-only permissions (0600).
func LoadOrCreateMasterKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) != MasterKeySize {
			return nil, aerr.New(aerr.CodeKeyFileCorrupt, fmt.Sprintf("master key file has %d bytes, want %d", len(data), MasterKeySize))
		}
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, aerr.Wrap(aerr.CodeKeyFileMissing, "read master key file", err)
	}

	key := make([]byte, MasterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, "generate master key", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, aerr.Wrap(aerr.CodeInternal, "create data directory", err)
		}
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, aerr.Wrap(aerr.CodeInternal, "persist master key", err)
	}
	return key, nil
}
