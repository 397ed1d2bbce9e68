// Package httpapi exposes Airlock's agent and operator HTTP surface
// (spec §6) over the credential, profile, and dispatcher services.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/ComputClaw/airlock/internal/app/domain"
	"github.com/ComputClaw/airlock/internal/app/services/credential"
	"github.com/ComputClaw/airlock/internal/app/services/dispatcher"
	"github.com/ComputClaw/airlock/internal/app/services/profile"
	"github.com/ComputClaw/airlock/pkg/logger"
	"github.com/ComputClaw/airlock/pkg/version"
)

// handler bundles the HTTP endpoints for Airlock's core services.
type handler struct {
	credentials *credential.Service
	profiles    *profile.Service
	dispatcher  *dispatcher.Dispatcher
	log         *logger.Logger
}

// NewHandler builds the mux exposing the agent surface (spec §4.5, §6) and
// the operator surface's underlying operations (spec §6, "mirrored under
// /api/admin/..."). Admin session auth is out of scope per spec §1; these
// routes are reachable directly, for local/operator tooling.
func NewHandler(credentials *credential.Service, profiles *profile.Service, disp *dispatcher.Dispatcher, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{credentials: credentials, profiles: profiles, dispatcher: disp, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.health)
	mux.HandleFunc("/system/version", h.systemVersion)

	// Agent surface.
	mux.HandleFunc("/credentials", h.agentCredentials)
	mux.HandleFunc("/profiles", h.agentProfiles)
	mux.HandleFunc("/profiles/", h.agentProfileResource)
	mux.HandleFunc("/execute", h.execute)
	mux.HandleFunc("/executions/", h.executionResource)

	// Operator surface (admin session auth out of scope, spec §1).
	mux.HandleFunc("/api/admin/credentials", h.adminCredentials)
	mux.HandleFunc("/api/admin/credentials/", h.adminCredentialResource)
	mux.HandleFunc("/api/admin/profiles/", h.adminProfileResource)

	return withRequestLog(mux, log)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) systemVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": version.Version, "full": version.FullVersion()})
}

// withRequestLog wraps next with a terse access log, mirroring the
// reference service's middleware-chain shape without its audit/CORS
// concerns (out of scope per spec §1).
func withRequestLog(next http.Handler, log *logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.WithField("method", r.Method).WithField("path", r.URL.Path).WithField("status", rw.status).Debug("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// pathSegments splits the trailing part of a request path after prefix
// into its non-empty "/"-separated segments.
func pathSegments(path, prefix string) []string {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// enrichProfileInfo projects p to its public shape, filling in each
// attached credential's description and value_exists — information the
// profile service doesn't itself hold (spec §4.4, "list/get ... including
// credential references (name, description, value_exists)").
func (h *handler) enrichProfileInfo(r *http.Request, p *domain.Profile) domain.ProfileInfo {
	info := profile.ToInfo(p)
	refs := make([]domain.CredentialRef, 0, len(p.CredentialNames))
	for _, name := range p.CredentialNames {
		ref := domain.CredentialRef{Name: name}
		if meta, err := h.credentials.Get(r.Context(), name); err == nil && meta != nil {
			ref.Description = meta.Description
			ref.ValueExists = meta.ValueExists
		}
		refs = append(refs, ref)
	}
	info.Credentials = refs
	return info
}
