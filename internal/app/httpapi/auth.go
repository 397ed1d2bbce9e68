package httpapi

import (
	"net/http"
	"strings"

	"github.com/ComputClaw/airlock/internal/app/services/profile"
	aerr "github.com/ComputClaw/airlock/pkg/errors"
)

// extractBearer reads the Authorization header's bearer token, spec §4.5
// step 1: "Parse Authorization: Bearer <token>. Token must begin with the
// fixed profile prefix; otherwise reject with 401." ok is false with
// detail "Missing" when the header is absent, "Invalid" when present but
// malformed or missing the ark_ prefix.
func extractBearer(r *http.Request) (token string, detail string, ok bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", "Missing", false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", "Invalid", false
	}
	token = strings.TrimSpace(parts[1])
	if !strings.HasPrefix(token, profile.KeyIDPrefix) {
		return "", "Invalid", false
	}
	return token, "", true
}

// authDetail maps an Authenticate failure to the agent-visible detail
// string from spec §4.5 step 2: {Missing, Invalid, NotLocked, Revoked,
// Expired}.
func authDetail(err error) string {
	se, ok := aerr.GetServiceError(err)
	if !ok {
		return "Invalid"
	}
	switch se.Code {
	case aerr.CodeMissingAuth:
		return "Missing"
	case aerr.CodeProfileNotLocked:
		return "NotLocked"
	case aerr.CodeRevoked:
		return "Revoked"
	case aerr.CodeExpired:
		return "Expired"
	default:
		return "Invalid"
	}
}

// writeAuthError always answers 401, carrying the detail distinguishing
// which auth invariant failed (spec §4.5 step 2, §7 "Auth errors (401)").
func writeAuthError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnauthorized, errorBody{
		Error:  "unauthorized",
		Detail: authDetail(err),
	})
}
