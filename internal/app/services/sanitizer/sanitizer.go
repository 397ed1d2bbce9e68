// Package sanitizer redacts secret material from execution output before
// any response leaves the process (spec §4.9).
package sanitizer

import (
	"sort"
	"strings"

	"github.com/ComputClaw/airlock/internal/app/domain"
)

// shortSecretThreshold is the length below which a value is replaced
// wholesale rather than with a last-four-chars hint.
const shortSecretThreshold = 4

// Sanitizer redacts a fixed set of plaintext secret values from text.
type Sanitizer struct {
	values []string // sorted by descending length
}

// New builds a Sanitizer over the given plaintext secret values, scoped to
// one profile's resolved credentials.
func New(values []string) *Sanitizer {
	sorted := append([]string(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	return &Sanitizer{values: sorted}
}

// Redact replaces every exact occurrence of a secret value in text.
// Values of length >4 become "[REDACTED...XXXX]" (last four chars of the
// secret); values of length <=4 become "[REDACTED]". Returns the
// sanitized text and whether any redaction fired.
func (s *Sanitizer) Redact(text string) (string, bool) {
	if text == "" {
		return text, false
	}
	fired := false
	for _, v := range s.values {
		if v == "" || !strings.Contains(text, v) {
			continue
		}
		replacement := "[REDACTED]"
		if len(v) > shortSecretThreshold {
			replacement = "[REDACTED..." + v[len(v)-4:] + "]"
		}
		text = strings.ReplaceAll(text, v, replacement)
		fired = true
	}
	return text, fired
}

// SanitizeExecution redacts stdout, stderr, error message, and the
// result value of e in place, returning whether anything fired. The result
// is walked recursively since a sandboxed script can return a structured
// value (object or array) with a secret nested anywhere inside it, not just
// a bare string.
func (s *Sanitizer) SanitizeExecution(e *domain.Execution) bool {
	var fired bool
	var ok bool

	e.Stdout, ok = s.Redact(e.Stdout)
	fired = fired || ok
	e.Stderr, ok = s.Redact(e.Stderr)
	fired = fired || ok
	e.ErrorMessage, ok = s.Redact(e.ErrorMessage)
	fired = fired || ok

	var hit bool
	e.Result, hit = s.redactValue(e.Result)
	fired = fired || hit

	return fired
}

// redactValue walks an arbitrary result value, redacting every string found
// inside maps and slices. Other JSON-primitive types (numbers, bools, nil)
// pass through unchanged.
func (s *Sanitizer) redactValue(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case string:
		return s.Redact(val)
	case map[string]interface{}:
		fired := false
		out := make(map[string]interface{}, len(val))
		for k, elem := range val {
			sanitized, hit := s.redactValue(elem)
			out[k] = sanitized
			fired = fired || hit
		}
		return out, fired
	case []interface{}:
		fired := false
		out := make([]interface{}, len(val))
		for i, elem := range val {
			sanitized, hit := s.redactValue(elem)
			out[i] = sanitized
			fired = fired || hit
		}
		return out, fired
	default:
		return v, false
	}
}
