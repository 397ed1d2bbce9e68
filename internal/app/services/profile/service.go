// Package profile implements the profile lifecycle, key-pair generation,
// HMAC verification, and bearer-token authentication from spec §4.4.
package profile

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ComputClaw/airlock/internal/app/crypto"
	"github.com/ComputClaw/airlock/internal/app/domain"
	"github.com/ComputClaw/airlock/internal/app/storage"
	"github.com/ComputClaw/airlock/pkg/errors"
	"github.com/ComputClaw/airlock/pkg/logger"
)

// KeyIDPrefix is the fixed prefix identifying an Airlock bearer key.
const KeyIDPrefix = "ark_"

const keyIDRandomLen = 24
const secretLen = 48

const keyIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
const secretAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Service implements the profile lifecycle contract.
type Service struct {
	store  storage.ProfileStore
	cipher crypto.Cipher
	log    *logger.Logger
	now    func() time.Time
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithLogger overrides the default logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock overrides the time source (used in tests for expiry checks).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a profile Service.
func New(store storage.ProfileStore, cipher crypto.Cipher, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cipher: cipher,
		log:    logger.NewDefault("profile"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func toCredentialRefs(names []string) []domain.CredentialRef {
	refs := make([]domain.CredentialRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, domain.CredentialRef{Name: name})
	}
	return refs
}

// ToInfo projects a Profile to its secret-free public shape. Credential
// descriptions/value_exists are left to the caller to enrich (the profile
// service only knows names; the credential service knows the rest).
func ToInfo(p *domain.Profile) domain.ProfileInfo {
	var keyID *string
	if p.KeyID != "" {
		k := p.KeyID
		keyID = &k
	}
	return domain.ProfileInfo{
		ID:          p.ID,
		Description: p.Description,
		Locked:      p.Locked,
		KeyID:       keyID,
		Credentials: toCredentialRefs(p.CredentialNames),
		ExpiresAt:   p.ExpiresAt,
		Revoked:     p.Revoked,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   &p.UpdatedAt,
	}
}

func (s *Service) List(ctx context.Context) ([]*domain.Profile, error) {
	return s.store.ListProfiles(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Profile, error) {
	return s.store.GetProfile(ctx, id)
}

// Create creates a fresh UNLOCKED profile.
func (s *Service) Create(ctx context.Context, description string) (*domain.Profile, error) {
	now := s.now().UTC()
	p := &domain.Profile{
		ID:          uuid.NewString(),
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update changes description/expiry. Allowed in any non-REVOKED state.
func (s *Service) Update(ctx context.Context, id string, description domain.Sentinel, expiresAt domain.Sentinel) (*domain.Profile, error) {
	p, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Revoked {
		return nil, errors.New(errors.CodeRevoked, "profile has been revoked")
	}

	switch description.Kind {
	case domain.Clear:
		p.Description = ""
	case domain.SetTo:
		p.Description = description.Value
	}

	switch expiresAt.Kind {
	case domain.Clear:
		p.ExpiresAt = nil
	case domain.SetTo:
		t, err := time.Parse(time.RFC3339, expiresAt.Value)
		if err != nil {
			return nil, errors.Wrap(errors.CodeValidation, "invalid expires_at", err)
		}
		p.ExpiresAt = &t
	}

	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AddCredentials attaches credential names to an UNLOCKED profile. Adding
// an already-attached name is a no-op.
func (s *Service) AddCredentials(ctx context.Context, id string, names []string) (*domain.Profile, error) {
	p, err := s.requireUnlocked(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if err := s.store.AddCredentialRef(ctx, id, name); err != nil {
			return nil, err
		}
	}
	return s.store.GetProfile(ctx, p.ID)
}

// RemoveCredentials detaches credential names from an UNLOCKED profile.
// Removing a non-attached name is silently skipped.
func (s *Service) RemoveCredentials(ctx context.Context, id string, names []string) (*domain.Profile, error) {
	p, err := s.requireUnlocked(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if err := s.store.RemoveCredentialRef(ctx, id, name); err != nil {
			return nil, err
		}
	}
	return s.store.GetProfile(ctx, p.ID)
}

// Lock transitions an UNLOCKED profile to LOCKED, generating a fresh key
// pair. The returned IssuedKey's Secret is never stored nor retrievable
// again.
func (s *Service) Lock(ctx context.Context, id string) (*domain.Profile, *domain.IssuedKey, error) {
	p, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if p.Revoked {
		return nil, nil, errors.New(errors.CodeRevoked, "profile has been revoked")
	}
	if p.Locked {
		return nil, nil, errors.New(errors.CodeAlreadyLocked, "profile is already locked")
	}

	key, err := s.issueKey(p)
	if err != nil {
		return nil, nil, err
	}
	p.Locked = true
	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, nil, err
	}
	return p, key, nil
}

// RegenerateKey replaces a LOCKED profile's key pair, preserving
// credentials and execution history. The old key_id ceases to
// authenticate immediately.
func (s *Service) RegenerateKey(ctx context.Context, id string) (*domain.Profile, *domain.IssuedKey, error) {
	p, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if p.Revoked {
		return nil, nil, errors.New(errors.CodeRevoked, "profile has been revoked")
	}
	if !p.Locked {
		return nil, nil, errors.New(errors.CodeNotLocked, "profile is not locked")
	}

	key, err := s.issueKey(p)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, nil, err
	}
	return p, key, nil
}

// Revoke marks any non-revoked profile REVOKED. Irreversible.
func (s *Service) Revoke(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Revoked {
		return nil, errors.New(errors.CodeAlreadyRevoked, "profile is already revoked")
	}
	p.Revoked = true
	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a profile. Only permitted UNLOCKED or REVOKED.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if p.Locked && !p.Revoked {
		return errors.New(errors.CodeWrongState, "profile is locked and active")
	}
	return s.store.DeleteProfile(ctx, id)
}

// AuthResult is the outcome of authenticating a bearer token.
type AuthResult struct {
	Profile         *domain.Profile
	SecretPlaintext string
}

// Authenticate resolves a "ark_ID:SECRET" bearer token to its profile and
// decrypted secret, enforcing the locked/revoked/expiry invariants.
func (s *Service) Authenticate(ctx context.Context, bearer string) (*AuthResult, error) {
	keyID, secret, ok := SplitBearer(bearer)
	if !ok {
		return nil, errors.New(errors.CodeMalformedAuth, "malformed bearer token")
	}

	p, err := s.store.GetProfileByKeyID(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New(errors.CodeNotFound, "unknown key")
	}
	if p.Revoked {
		return nil, errors.New(errors.CodeRevoked, "profile has been revoked")
	}
	if !p.Locked {
		return nil, errors.New(errors.CodeProfileNotLocked, "profile is not locked")
	}
	if p.IsExpired(s.now()) {
		return nil, errors.New(errors.CodeExpired, "profile has expired")
	}

	storedSecret, err := s.cipher.Decrypt(p.KeySecretEncrypted)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "decrypt profile secret", err)
	}
	if subtle.ConstantTimeCompare([]byte(secret), storedSecret) != 1 {
		return nil, errors.New(errors.CodeNotFound, "unknown key")
	}

	if err := s.store.TouchLastUsed(ctx, p.ID, s.now().UTC()); err != nil {
		s.log.WithField("profile", p.ID).Warn("failed to record last_used_at")
	}
	return &AuthResult{Profile: p, SecretPlaintext: secret}, nil
}

// VerifyScript constant-time checks providedHex against
// HMAC-SHA256(secret, script).
func VerifyScript(secret, script, providedHex string) bool {
	expected := HMACHex(secret, script)
	if len(expected) != len(providedHex) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(providedHex)) == 1
}

// HMACHex computes the lowercase-hex HMAC-SHA256 of script keyed by secret,
// both interpreted as raw UTF-8 bytes.
func HMACHex(secret, script string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(script))
	return hex.EncodeToString(mac.Sum(nil))
}

// SplitBearer splits a "ark_ID:SECRET" bearer token into its key id and
// secret halves.
func SplitBearer(bearer string) (keyID, secret string, ok bool) {
	if !strings.HasPrefix(bearer, KeyIDPrefix) {
		return "", "", false
	}
	idx := strings.IndexByte(bearer, ':')
	if idx < 0 {
		return "", "", false
	}
	return bearer[:idx], bearer[idx+1:], true
}

func (s *Service) issueKey(p *domain.Profile) (*domain.IssuedKey, error) {
	keyID := KeyIDPrefix + randomString(keyIDRandomLen, keyIDAlphabet)
	secret := randomString(secretLen, secretAlphabet)

	blob, err := s.cipher.Encrypt([]byte(secret))
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "encrypt profile secret", err)
	}
	p.KeyID = keyID
	p.KeySecretEncrypted = blob
	return &domain.IssuedKey{KeyID: keyID, Secret: secret}, nil
}

func (s *Service) mustGet(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New(errors.CodeNotFound, "profile not found")
	}
	return p, nil
}

func (s *Service) requireUnlocked(ctx context.Context, id string) (*domain.Profile, error) {
	p, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Revoked {
		return nil, errors.New(errors.CodeRevoked, "profile has been revoked")
	}
	if p.Locked {
		return nil, errors.New(errors.CodeWrongState, "profile is locked")
	}
	return p, nil
}

func randomString(n int, alphabet string) string {
	out := make([]byte, n)
	idx := make([]byte, n)
	if _, err := rand.Read(idx); err != nil {
		panic(err) // crypto/rand failure indicates a broken host; unrecoverable
	}
	for i, b := range idx {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}
