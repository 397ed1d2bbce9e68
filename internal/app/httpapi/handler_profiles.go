package httpapi

import (
	"net/http"

	core "github.com/ComputClaw/airlock/internal/app/core/service"
	"github.com/ComputClaw/airlock/internal/app/domain"
	aerr "github.com/ComputClaw/airlock/pkg/errors"
)

// agentProfiles implements GET/POST /profiles (spec §6).
func (h *handler) agentProfiles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		profiles, err := h.profiles.List(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		limit := core.ClampLimit(parseLimit(r), core.DefaultListLimit, core.MaxListLimit)
		if limit < len(profiles) {
			profiles = profiles[:limit]
		}
		out := make([]domain.ProfileInfo, 0, len(profiles))
		for _, p := range profiles {
			out = append(out, h.enrichProfileInfo(r, p))
		}
		writeJSON(w, http.StatusOK, map[string]any{"profiles": out})

	case http.MethodPost:
		var payload struct {
			Description string `json:"description"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeServiceError(w, aerr.Wrap(aerr.CodeValidation, "malformed request body", err))
			return
		}
		p, err := h.profiles.Create(r.Context(), payload.Description)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, h.enrichProfileInfo(r, p))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// agentProfileResource implements GET /profiles/{id} and POST/DELETE
// /profiles/{id}/credentials (spec §6).
func (h *handler) agentProfileResource(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/profiles/")
	if len(segments) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := segments[0]

	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p, err := h.profiles.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if p == nil {
			writeServiceError(w, aerr.New(aerr.CodeNotFound, "profile not found"))
			return
		}
		writeJSON(w, http.StatusOK, h.enrichProfileInfo(r, p))
		return
	}

	if len(segments) == 2 && segments[1] == "credentials" {
		h.profileCredentials(w, r, id)
		return
	}

	w.WriteHeader(http.StatusNotFound)
}

func (h *handler) profileCredentials(w http.ResponseWriter, r *http.Request, id string) {
	var payload struct {
		Credentials []string `json:"credentials"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, aerr.Wrap(aerr.CodeValidation, "malformed request body", err))
		return
	}

	switch r.Method {
	case http.MethodPost:
		for _, name := range payload.Credentials {
			meta, err := h.credentials.Get(r.Context(), name)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			if meta == nil {
				writeServiceError(w, aerr.New(aerr.CodeUnknownCredential, "credential not found: "+name))
				return
			}
		}
		p, err := h.profiles.AddCredentials(r.Context(), id, payload.Credentials)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.enrichProfileInfo(r, p))

	case http.MethodDelete:
		p, err := h.profiles.RemoveCredentials(r.Context(), id, payload.Credentials)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.enrichProfileInfo(r, p))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
