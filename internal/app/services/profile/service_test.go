package profile

import (
	"bytes"
	"context"
	"testing"
	"time"

	icrypto "github.com/ComputClaw/airlock/internal/app/crypto"
	"github.com/ComputClaw/airlock/internal/app/domain"
	"github.com/ComputClaw/airlock/internal/app/storage/memory"
	"github.com/ComputClaw/airlock/pkg/errors"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := memory.New()
	cipher, err := icrypto.NewProfileSecretCipher(bytes.Repeat([]byte{0x22}, icrypto.MasterKeySize))
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	return New(store, cipher)
}

func TestLockThenAuthenticateRoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "r")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, key, err := svc.Lock(ctx, p.ID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	result, err := svc.Authenticate(ctx, key.String())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result.Profile.ID != p.ID {
		t.Fatalf("expected profile %s, got %s", p.ID, result.Profile.ID)
	}
	if result.SecretPlaintext != key.Secret {
		t.Fatalf("secret mismatch")
	}

	script := "print(1)"
	hash := HMACHex(result.SecretPlaintext, script)
	if !VerifyScript(result.SecretPlaintext, script, hash) {
		t.Fatal("expected verify to succeed")
	}
}

func TestRegenerateKeyInvalidatesOldKeyID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "r")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, oldKey, err := svc.Lock(ctx, p.ID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	_, newKey, err := svc.RegenerateKey(ctx, p.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if newKey.KeyID == oldKey.KeyID {
		t.Fatal("expected a new key id")
	}

	if _, err := svc.Authenticate(ctx, oldKey.String()); !errors.Is(err, errors.CodeNotFound) {
		t.Fatalf("expected old key to fail with NotFound, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, newKey.String()); err != nil {
		t.Fatalf("expected new key to authenticate, got %v", err)
	}
}

func TestAuthenticateRejectsRevoked(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "r")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, key, err := svc.Lock(ctx, p.ID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := svc.Revoke(ctx, p.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	_, err = svc.Authenticate(ctx, key.String())
	if !errors.Is(err, errors.CodeRevoked) {
		t.Fatalf("expected CodeRevoked, got %v", err)
	}
}

func TestAuthenticateRejectsExpired(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, "r")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, key, err := svc.Lock(ctx, p.ID)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	past := time.Now().Add(-time.Second).UTC().Format(time.RFC3339)
	expires := domain.Sentinel{Kind: domain.SetTo, Value: past}
	if _, err := svc.Update(ctx, p.ID, domain.UnchangedSentinel, expires); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err = svc.Authenticate(ctx, key.String())
	if !errors.Is(err, errors.CodeExpired) {
		t.Fatalf("expected CodeExpired, got %v", err)
	}
}

func TestDoubleLockFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p, err := svc.Create(ctx, "r")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.Lock(ctx, p.ID); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, _, err := svc.Lock(ctx, p.ID); !errors.Is(err, errors.CodeAlreadyLocked) {
		t.Fatalf("expected CodeAlreadyLocked, got %v", err)
	}
}
