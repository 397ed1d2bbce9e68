// Package domain holds Airlock's core entity types: credentials,
// profiles, and executions, independent of storage or transport.
package domain

import (
	"regexp"
	"time"
)

// CredentialNamePattern is the validation pattern for credential slot names.
var CredentialNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// MaxCredentialNameLen is the maximum accepted credential name length.
const MaxCredentialNameLen = 128

// ValidateCredentialName reports whether name satisfies spec §3's naming rule.
func ValidateCredentialName(name string) bool {
	if name == "" || len(name) > MaxCredentialNameLen {
		return false
	}
	return CredentialNamePattern.MatchString(name)
}

// Credential is a named storage cell for a secret value. Value is the
// encrypted blob (nonce || ciphertext || tag); it is nil when no value
// has been set yet.
type Credential struct {
	ID          string
	Name        string
	Description string
	Value       []byte // encrypted; nil means unset
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValueExists reports whether a value has been set for this credential.
func (c *Credential) ValueExists() bool {
	return c != nil && c.Value != nil
}

// CredentialMeta is the public, value-free projection of a Credential.
type CredentialMeta struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ValueExists bool      `json:"value_exists"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToMeta projects a Credential to its value-free public shape.
func (c *Credential) ToMeta() CredentialMeta {
	return CredentialMeta{
		Name:        c.Name,
		Description: c.Description,
		ValueExists: c.ValueExists(),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// SentinelKind distinguishes "leave unchanged" from "clear" from "set to a
// new value" for partial credential updates (spec §9).
type SentinelKind int

const (
	// Unchanged means the field is left as-is.
	Unchanged SentinelKind = iota
	// Clear means the field (value or description) is reset to empty/nil.
	Clear
	// SetTo means the field is replaced by the carried value.
	SetTo
)

// Sentinel is a three-valued partial-update field: Unchanged, Clear, or
// SetTo(Value).
type Sentinel struct {
	Kind  SentinelKind
	Value string
}

// UnchangedSentinel is the default "don't touch this field" value.
var UnchangedSentinel = Sentinel{Kind: Unchanged}

// ClearSentinel clears the field.
var ClearSentinel = Sentinel{Kind: Clear}

// SetToSentinel sets the field to v.
func SetToSentinel(v string) Sentinel {
	return Sentinel{Kind: SetTo, Value: v}
}
