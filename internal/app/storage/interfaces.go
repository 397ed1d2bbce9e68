// Package storage defines the persistence contracts the credential and
// profile services depend on, plus in-memory and postgres implementations.
package storage

import (
	"context"
	"time"

	"github.com/ComputClaw/airlock/internal/app/domain"
)

// CredentialStore persists credential slots.
type CredentialStore interface {
	ListCredentials(ctx context.Context) ([]*domain.Credential, error)
	GetCredentialByName(ctx context.Context, name string) (*domain.Credential, error)
	CreateCredential(ctx context.Context, c *domain.Credential) error
	UpdateCredential(ctx context.Context, c *domain.Credential) error
	DeleteCredential(ctx context.Context, name string) error
}

// ProfileStore persists profiles and their credential bindings.
type ProfileStore interface {
	ListProfiles(ctx context.Context) ([]*domain.Profile, error)
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	GetProfileByKeyID(ctx context.Context, keyID string) (*domain.Profile, error)
	CreateProfile(ctx context.Context, p *domain.Profile) error
	UpdateProfile(ctx context.Context, p *domain.Profile) error
	DeleteProfile(ctx context.Context, id string) error

	AddCredentialRef(ctx context.Context, profileID, credentialName string) error
	RemoveCredentialRef(ctx context.Context, profileID, credentialName string) error
	// RemoveCredentialRefEverywhere drops all bindings to credentialName,
	// used when a credential is deleted (spec §3 cascades).
	RemoveCredentialRefEverywhere(ctx context.Context, credentialName string) error
	// ProfilesReferencing returns ids of LOCKED profiles still bound to
	// credentialName, used to block credential deletion (spec §4.3).
	LockedProfilesReferencing(ctx context.Context, credentialName string) ([]string, error)

	TouchLastUsed(ctx context.Context, profileID string, at time.Time) error
}

// ExecutionStore persists terminal execution records. Non-terminal state
// may live purely in the dispatcher's in-memory map (spec §3, §4.6).
type ExecutionStore interface {
	SaveExecution(ctx context.Context, e *domain.Execution) error
	GetExecution(ctx context.Context, id string) (*domain.Execution, error)
}

// Store is the union of every persistence contract Airlock depends on.
type Store interface {
	CredentialStore
	ProfileStore
	ExecutionStore
}
