package httpapi

import (
	"context"
	"net/http"
	"time"

	core "github.com/ComputClaw/airlock/internal/app/core/service"
	"github.com/ComputClaw/airlock/internal/app/services/credential"
	"github.com/ComputClaw/airlock/internal/app/services/dispatcher"
	"github.com/ComputClaw/airlock/internal/app/services/profile"
	"github.com/ComputClaw/airlock/internal/app/system"
	"github.com/ComputClaw/airlock/pkg/logger"
)

// Service exposes the HTTP API and fits into the system manager lifecycle.
type Service struct {
	addr    string
	server  *http.Server
	handler http.Handler
	log     *logger.Logger
}

// NewService builds the HTTP service over credentials/profiles/dispatcher,
// listening on addr.
func NewService(addr string, credentials *credential.Service, profiles *profile.Service, disp *dispatcher.Dispatcher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("http")
	}
	return &Service{
		addr:    addr,
		handler: NewHandler(credentials, profiles, disp, log),
		log:     log,
	}
}

var (
	_ system.Service            = (*Service)(nil)
	_ system.DescriptorProvider = (*Service)(nil)
)

func (s *Service) Name() string { return "http" }

// Descriptor advertises the HTTP service's placement and capabilities to
// the system manager's introspection surface.
func (s *Service) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:   "http",
		Domain: "ingress",
		Layer:  core.LayerIngress,
	}.WithCapabilities("agent-surface", "operator-surface")
}

func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http server error")
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
