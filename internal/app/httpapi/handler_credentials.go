package httpapi

import (
	"net/http"

	core "github.com/ComputClaw/airlock/internal/app/core/service"
	"github.com/ComputClaw/airlock/internal/app/domain"
	aerr "github.com/ComputClaw/airlock/pkg/errors"
)

// agentCredentials implements GET/POST /credentials (spec §6). The agent
// surface never sets a credential's value — only create with name and
// description; value set/update is an operator-only operation (spec §3).
func (h *handler) agentCredentials(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		metas, err := h.credentials.List(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		limit := core.ClampLimit(parseLimit(r), core.DefaultListLimit, core.MaxListLimit)
		if limit < len(metas) {
			metas = metas[:limit]
		}
		writeJSON(w, http.StatusOK, map[string]any{"credentials": metas})

	case http.MethodPost:
		var payload struct {
			Credentials []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"credentials"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeServiceError(w, aerr.Wrap(aerr.CodeValidation, "malformed request body", err))
			return
		}

		var invalid []string
		for _, c := range payload.Credentials {
			if !domain.ValidateCredentialName(c.Name) {
				invalid = append(invalid, c.Name)
			}
		}
		if len(invalid) > 0 {
			writeServiceError(w, aerr.New(aerr.CodeInvalidName, "invalid credential name").WithDetails(invalid))
			return
		}

		created := make([]string, 0, len(payload.Credentials))
		skipped := make([]string, 0)
		for _, c := range payload.Credentials {
			if _, err := h.credentials.Create(r.Context(), c.Name, c.Description, ""); err != nil {
				if aerr.Is(err, aerr.CodeNameTaken) {
					skipped = append(skipped, c.Name)
					continue
				}
				writeServiceError(w, err)
				return
			}
			created = append(created, c.Name)
		}
		writeJSON(w, http.StatusCreated, map[string]any{"created": created, "skipped": skipped})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
