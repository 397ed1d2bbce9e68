package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	aerr "github.com/ComputClaw/airlock/pkg/errors"
)

// errorBody is the stable shape agents see on any failure response. detail
// is populated for auth failures where the agent needs to distinguish
// Missing/Invalid/NotLocked/Revoked/Expired (spec §4.5 step 2).
type errorBody struct {
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
	Details any    `json:"details,omitempty"`
}

// writeServiceError maps err to its spec §7 HTTP status and writes an
// opaque, secret-free body. Errors that are not a *errors.ServiceError map
// to 500 with a generic message; their detail is never echoed to the agent.
func writeServiceError(w http.ResponseWriter, err error) {
	se, ok := aerr.GetServiceError(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}
	writeJSON(w, aerr.GetHTTPStatus(err), errorBody{
		Error:   string(se.Code),
		Detail:  se.Message,
		Details: se.Details,
	})
}

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// parseLimit reads an optional ?limit= query parameter, returning 0 (the
// caller's default) when absent or malformed.
func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
