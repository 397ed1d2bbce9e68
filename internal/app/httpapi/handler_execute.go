package httpapi

import (
	"net/http"
	"time"

	"github.com/ComputClaw/airlock/internal/app/services/profile"
	aerr "github.com/ComputClaw/airlock/pkg/errors"
)

// execute implements POST /execute (spec §4.5, §6): authenticate the
// bearer key, verify the script's HMAC, resolve credentials, and hand the
// execution off to the dispatcher. The decrypted credential map never
// leaves this request's scope.
func (h *handler) execute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	token, detail, ok := extractBearer(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Detail: detail})
		return
	}

	auth, err := h.profiles.Authenticate(r.Context(), token)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	var payload struct {
		Script  string `json:"script"`
		Hash    string `json:"hash"`
		Timeout int64  `json:"timeout"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, aerr.Wrap(aerr.CodeValidation, "malformed request body", err))
		return
	}

	if !profile.VerifyScript(auth.SecretPlaintext, payload.Script, payload.Hash) {
		writeServiceError(w, aerr.New(aerr.CodeBadHMAC, "script hash verification failed"))
		return
	}

	secrets, err := h.credentials.ResolveForProfile(r.Context(), auth.Profile)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var timeout time.Duration
	if payload.Timeout > 0 {
		timeout = time.Duration(payload.Timeout) * time.Second
	}

	execID, err := h.dispatcher.Submit(auth.Profile.ID, payload.Script, secrets, timeout)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"execution_id": execID,
		"poll_url":     "/executions/" + execID,
		"status":       "pending",
	})
}

// executionResource implements GET /executions/{id} and POST
// /executions/{id}/respond (spec §6).
func (h *handler) executionResource(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/executions/")
	if len(segments) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id := segments[0]

	switch {
	case len(segments) == 1 && r.Method == http.MethodGet:
		h.pollExecution(w, r, id)
	case len(segments) == 2 && segments[1] == "respond" && r.Method == http.MethodPost:
		h.respondExecution(w, r, id)
	case len(segments) == 1:
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) pollExecution(w http.ResponseWriter, r *http.Request, id string) {
	exec, err := h.dispatcher.Poll(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if exec == nil {
		writeServiceError(w, aerr.New(aerr.CodeNotFound, "execution not found"))
		return
	}
	writeJSON(w, http.StatusOK, exec.ToResult())
}

func (h *handler) respondExecution(w http.ResponseWriter, r *http.Request, id string) {
	var payload struct {
		Response string `json:"response"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, aerr.Wrap(aerr.CodeValidation, "malformed request body", err))
		return
	}
	exec, err := h.dispatcher.Respond(id, payload.Response)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec.ToResult())
}
