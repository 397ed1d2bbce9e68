package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/ComputClaw/airlock/internal/app/domain"
	aerr "github.com/ComputClaw/airlock/pkg/errors"
)

// lockResult is a ProfileInfo carrying the one-time full bearer key string
// (spec §6, lock/regenerate-key "returns {…, key: 'ark_ID:SECRET'}").
type lockResult struct {
	domain.ProfileInfo
	Key string `json:"key"`
}

// adminCredentials implements the operator create path: POST
// /api/admin/credentials, the only path that may set a value directly
// (spec §3, "value set/updated by operator only").
func (h *handler) adminCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Value       string `json:"value"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, aerr.Wrap(aerr.CodeValidation, "malformed request body", err))
		return
	}
	meta, err := h.credentials.Create(r.Context(), payload.Name, payload.Description, payload.Value)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

// adminCredentialResource implements PUT/DELETE /api/admin/credentials/{name}.
func (h *handler) adminCredentialResource(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/api/admin/credentials/")
	if len(segments) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	name := segments[0]

	switch r.Method {
	case http.MethodPut, http.MethodPatch:
		var raw map[string]json.RawMessage
		if err := decodeRawJSON(r, &raw); err != nil {
			writeServiceError(w, aerr.Wrap(aerr.CodeValidation, "malformed request body", err))
			return
		}
		sentinels, err := decodeSentinels(raw, "value", "description")
		if err != nil {
			writeServiceError(w, aerr.Wrap(aerr.CodeValidation, "malformed request body", err))
			return
		}
		meta, err := h.credentials.Update(r.Context(), name, sentinels["value"], sentinels["description"])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, meta)

	case http.MethodDelete:
		if err := h.credentials.Delete(r.Context(), name); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// adminProfileResource implements PUT /api/admin/profiles/{id},
// POST .../lock, .../revoke, .../regenerate-key, and DELETE
// /api/admin/profiles/{id} (spec §6).
func (h *handler) adminProfileResource(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/api/admin/profiles/")
	if len(segments) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := segments[0]

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodPut, http.MethodPatch:
			h.adminUpdateProfile(w, r, id)
		case http.MethodDelete:
			if err := h.profiles.Delete(r.Context(), id); err != nil {
				writeServiceError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	if len(segments) != 2 || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch segments[1] {
	case "lock":
		p, key, err := h.profiles.Lock(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lockResult{ProfileInfo: h.enrichProfileInfo(r, p), Key: key.String()})

	case "revoke":
		p, err := h.profiles.Revoke(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.enrichProfileInfo(r, p))

	case "regenerate-key":
		p, key, err := h.profiles.RegenerateKey(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lockResult{ProfileInfo: h.enrichProfileInfo(r, p), Key: key.String()})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) adminUpdateProfile(w http.ResponseWriter, r *http.Request, id string) {
	var raw map[string]json.RawMessage
	if err := decodeRawJSON(r, &raw); err != nil {
		writeServiceError(w, aerr.Wrap(aerr.CodeValidation, "malformed request body", err))
		return
	}
	sentinels, err := decodeSentinels(raw, "description", "expires_at")
	if err != nil {
		writeServiceError(w, aerr.Wrap(aerr.CodeValidation, "malformed request body", err))
		return
	}
	p, err := h.profiles.Update(r.Context(), id, sentinels["description"], sentinels["expires_at"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.enrichProfileInfo(r, p))
}

func decodeRawJSON(r *http.Request, dst *map[string]json.RawMessage) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

