// Package memory provides an in-process Store implementation, used when
// no DATABASE_URL is configured and in unit tests throughout the
// credential/profile/dispatcher packages.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ComputClaw/airlock/internal/app/domain"
	aerr "github.com/ComputClaw/airlock/pkg/errors"
)

// Store is a mutex-guarded, map-backed implementation of storage.Store.
type Store struct {
	mu sync.RWMutex

	credentials map[string]*domain.Credential // by name
	profiles    map[string]*domain.Profile    // by id
	profileRefs map[string]map[string]bool    // profile id -> set of credential names
	executions  map[string]*domain.Execution  // by id
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		credentials: make(map[string]*domain.Credential),
		profiles:    make(map[string]*domain.Profile),
		profileRefs: make(map[string]map[string]bool),
		executions:  make(map[string]*domain.Execution),
	}
}

func cloneCredential(c *domain.Credential) *domain.Credential {
	cp := *c
	if c.Value != nil {
		cp.Value = append([]byte(nil), c.Value...)
	}
	return &cp
}

func (s *Store) ListCredentials(ctx context.Context) ([]*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Credential, 0, len(s.credentials))
	for _, c := range s.credentials {
		out = append(out, cloneCredential(c))
	}
	return out, nil
}

func (s *Store) GetCredentialByName(ctx context.Context, name string) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[name]
	if !ok {
		return nil, nil
	}
	return cloneCredential(c), nil
}

func (s *Store) CreateCredential(ctx context.Context, c *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.credentials[c.Name]; exists {
		return aerr.New(aerr.CodeNameTaken, "credential name already exists")
	}
	s.credentials[c.Name] = cloneCredential(c)
	return nil
}

func (s *Store) UpdateCredential(ctx context.Context, c *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.credentials[c.Name]; !exists {
		return aerr.New(aerr.CodeNotFound, "credential not found")
	}
	s.credentials[c.Name] = cloneCredential(c)
	return nil
}

func (s *Store) DeleteCredential(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.credentials[name]; !exists {
		return aerr.New(aerr.CodeNotFound, "credential not found")
	}
	delete(s.credentials, name)
	for _, refs := range s.profileRefs {
		delete(refs, name)
	}
	return nil
}

func cloneProfile(p *domain.Profile) *domain.Profile {
	cp := *p
	if p.KeySecretEncrypted != nil {
		cp.KeySecretEncrypted = append([]byte(nil), p.KeySecretEncrypted...)
	}
	if p.ExpiresAt != nil {
		v := *p.ExpiresAt
		cp.ExpiresAt = &v
	}
	if p.LastUsedAt != nil {
		v := *p.LastUsedAt
		cp.LastUsedAt = &v
	}
	cp.CredentialNames = append([]string(nil), p.CredentialNames...)
	return &cp
}

func (s *Store) refNames(id string) []string {
	refs := s.profileRefs[id]
	names := make([]string, 0, len(refs))
	for name := range refs {
		names = append(names, name)
	}
	return names
}

func (s *Store) withRefs(p *domain.Profile) *domain.Profile {
	cp := cloneProfile(p)
	cp.CredentialNames = s.refNames(p.ID)
	return cp
}

func (s *Store) ListProfiles(ctx context.Context) ([]*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, s.withRefs(p))
	}
	return out, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, nil
	}
	return s.withRefs(p), nil
}

func (s *Store) GetProfileByKeyID(ctx context.Context, keyID string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.KeyID == keyID {
			return s.withRefs(p), nil
		}
	}
	return nil, nil
}

func (s *Store) CreateProfile(ctx context.Context, p *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = cloneProfile(p)
	s.profileRefs[p.ID] = make(map[string]bool)
	return nil
}

func (s *Store) UpdateProfile(ctx context.Context, p *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; !ok {
		return aerr.New(aerr.CodeNotFound, "profile not found")
	}
	s.profiles[p.ID] = cloneProfile(p)
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id]; !ok {
		return aerr.New(aerr.CodeNotFound, "profile not found")
	}
	delete(s.profiles, id)
	delete(s.profileRefs, id)
	return nil
}

func (s *Store) AddCredentialRef(ctx context.Context, profileID, credentialName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs, ok := s.profileRefs[profileID]
	if !ok {
		return aerr.New(aerr.CodeNotFound, "profile not found")
	}
	refs[credentialName] = true
	return nil
}

func (s *Store) RemoveCredentialRef(ctx context.Context, profileID, credentialName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	refs, ok := s.profileRefs[profileID]
	if !ok {
		return aerr.New(aerr.CodeNotFound, "profile not found")
	}
	delete(refs, credentialName)
	return nil
}

func (s *Store) RemoveCredentialRefEverywhere(ctx context.Context, credentialName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, refs := range s.profileRefs {
		delete(refs, credentialName)
	}
	return nil
}

func (s *Store) LockedProfilesReferencing(ctx context.Context, credentialName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, refs := range s.profileRefs {
		if !refs[credentialName] {
			continue
		}
		if p, ok := s.profiles[id]; ok && p.State() == domain.ProfileLocked {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) TouchLastUsed(ctx context.Context, profileID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[profileID]
	if !ok {
		return aerr.New(aerr.CodeNotFound, "profile not found")
	}
	p.LastUsedAt = &at
	return nil
}

func (s *Store) SaveExecution(ctx context.Context, e *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.ID] = e.Clone()
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, nil
	}
	return e.Clone(), nil
}
