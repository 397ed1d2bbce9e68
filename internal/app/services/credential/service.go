// Package credential implements the credential slot CRUD and profile-scoped
// resolution contract from spec §4.3.
package credential

import (
	"context"

	"github.com/ComputClaw/airlock/internal/app/crypto"
	"github.com/ComputClaw/airlock/internal/app/domain"
	"github.com/ComputClaw/airlock/internal/app/storage"
	"github.com/ComputClaw/airlock/pkg/errors"
	"github.com/ComputClaw/airlock/pkg/logger"
)

// ProfileLookup is the subset of the profile store the credential service
// needs for resolve_for_profile and delete-guard checks. Kept narrow so
// the credential service does not import the profile service.
type ProfileLookup interface {
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
}

// Service implements the credential slot contract.
type Service struct {
	store   storage.CredentialStore
	refs    storage.ProfileStore
	cipher  crypto.Cipher
	log     *logger.Logger
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithLogger overrides the default logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Service) { s.log = log }
}

// New builds a credential Service.
func New(store storage.CredentialStore, refs storage.ProfileStore, cipher crypto.Cipher, opts ...Option) *Service {
	s := &Service{
		store:  store,
		refs:   refs,
		cipher: cipher,
		log:    logger.NewDefault("credential"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns value-free metadata for every credential slot.
func (s *Service) List(ctx context.Context) ([]domain.CredentialMeta, error) {
	creds, err := s.store.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CredentialMeta, 0, len(creds))
	for _, c := range creds {
		out = append(out, c.ToMeta())
	}
	return out, nil
}

// Get returns value-free metadata for one credential, or nil if unknown.
func (s *Service) Get(ctx context.Context, name string) (*domain.CredentialMeta, error) {
	c, err := s.store.GetCredentialByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, nil
	}
	meta := c.ToMeta()
	return &meta, nil
}

// Create creates a new credential slot. value may be empty, leaving the
// slot unset.
func (s *Service) Create(ctx context.Context, name, description, value string) (*domain.CredentialMeta, error) {
	if !domain.ValidateCredentialName(name) {
		return nil, errors.New(errors.CodeInvalidName, "credential name must match ^[A-Za-z_][A-Za-z0-9_]*$ and be <=128 chars")
	}

	c := &domain.Credential{Name: name, Description: description}
	if value != "" {
		blob, err := s.cipher.Encrypt([]byte(value))
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, "encrypt credential value", err)
		}
		c.Value = blob
	}

	if err := s.store.CreateCredential(ctx, c); err != nil {
		return nil, err
	}
	meta := c.ToMeta()
	return &meta, nil
}

// Update applies sentinel-valued partial updates to a credential's value
// and description (spec §9).
func (s *Service) Update(ctx context.Context, name string, value, description domain.Sentinel) (*domain.CredentialMeta, error) {
	c, err := s.store.GetCredentialByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errors.New(errors.CodeNotFound, "credential not found")
	}

	switch description.Kind {
	case domain.Clear:
		c.Description = ""
	case domain.SetTo:
		c.Description = description.Value
	}

	switch value.Kind {
	case domain.Clear:
		c.Value = nil
	case domain.SetTo:
		blob, err := s.cipher.Encrypt([]byte(value.Value))
		if err != nil {
			return nil, errors.Wrap(errors.CodeInternal, "encrypt credential value", err)
		}
		c.Value = blob
	}

	if err := s.store.UpdateCredential(ctx, c); err != nil {
		return nil, err
	}
	meta := c.ToMeta()
	return &meta, nil
}

// Delete removes a credential slot. It fails with CodeInUse if any LOCKED
// profile still references it; references from UNLOCKED profiles are
// dropped silently.
func (s *Service) Delete(ctx context.Context, name string) error {
	existing, err := s.store.GetCredentialByName(ctx, name)
	if err != nil {
		return err
	}
	if existing == nil {
		return errors.New(errors.CodeNotFound, "credential not found")
	}

	blocking, err := s.refs.LockedProfilesReferencing(ctx, name)
	if err != nil {
		return err
	}
	if len(blocking) > 0 {
		return errors.New(errors.CodeInUse, "credential is referenced by locked profiles").WithDetails(blocking)
	}

	if err := s.refs.RemoveCredentialRefEverywhere(ctx, name); err != nil {
		return err
	}
	return s.store.DeleteCredential(ctx, name)
}

// ResolveForProfile decrypts every set credential value attached to a
// LOCKED profile, for hand-off to a single execution's sandbox. Fails
// with CodeProfileNotLocked if the profile is not LOCKED.
func (s *Service) ResolveForProfile(ctx context.Context, profile *domain.Profile) (map[string]string, error) {
	if profile == nil {
		return nil, errors.New(errors.CodeNotFound, "profile not found")
	}
	if profile.State() != domain.ProfileLocked {
		return nil, errors.New(errors.CodeProfileNotLocked, "profile is not locked")
	}

	out := make(map[string]string, len(profile.CredentialNames))
	for _, name := range profile.CredentialNames {
		c, err := s.store.GetCredentialByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if c == nil || !c.ValueExists() {
			continue
		}
		plaintext, err := s.cipher.Decrypt(c.Value)
		if err != nil {
			s.log.WithField("credential", name).WithField("profile", profile.ID).Error("credential decrypt failed")
			return nil, err
		}
		out[name] = string(plaintext)
	}
	return out, nil
}
