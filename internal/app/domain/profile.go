package domain

import "time"

// ProfileState is the closed sum of profile lifecycle states (spec §3).
type ProfileState string

const (
	ProfileUnlocked ProfileState = "unlocked"
	ProfileLocked   ProfileState = "locked"
	ProfileRevoked  ProfileState = "revoked"
)

// Profile is a named, lifecycled bundle granting scoped access to a set
// of credentials via a two-part key.
type Profile struct {
	ID                  string
	Description         string
	Locked              bool
	KeyID               string // "ark_" + 24 lowercase alphanumerics; set only once locked
	KeySecretEncrypted  []byte // authenticated-encrypted secret; set only once locked
	ExpiresAt           *time.Time
	Revoked             bool
	CredentialNames     []string // attached credential names
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LastUsedAt          *time.Time
}

// State derives the closed-sum state from the locked/revoked flags.
func (p *Profile) State() ProfileState {
	switch {
	case p.Revoked:
		return ProfileRevoked
	case p.Locked:
		return ProfileLocked
	default:
		return ProfileUnlocked
	}
}

// IsExpired reports whether the profile's expiry has strictly passed as of now.
func (p *Profile) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// CredentialRef is a profile-scoped projection of an attached credential,
// used in ProfileInfo responses.
type CredentialRef struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ValueExists bool   `json:"value_exists"`
}

// ProfileInfo is the public, secret-free projection of a Profile (spec §6).
type ProfileInfo struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Locked      bool            `json:"locked"`
	KeyID       *string         `json:"key_id"`
	Credentials []CredentialRef `json:"credentials"`
	ExpiresAt   *time.Time      `json:"expires_at"`
	Revoked     bool            `json:"revoked"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   *time.Time      `json:"updated_at"`
}

// IssuedKey is the full bearer key string returned exactly once, on lock
// and on regenerate.
type IssuedKey struct {
	KeyID  string
	Secret string
}

// String renders the "ark_ID:SECRET" bearer token form.
func (k IssuedKey) String() string {
	return k.KeyID + ":" + k.Secret
}
