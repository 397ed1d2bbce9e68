// Package app wires every Airlock component together: configuration,
// storage, cryptography, the credential/profile/dispatcher services, the
// sandbox pool, and the HTTP ingress, then hands the result to a system
// manager for coordinated startup and shutdown.
package app

import (
	"context"
	"path/filepath"

	"golang.org/x/time/rate"

	"github.com/ComputClaw/airlock/internal/app/crypto"
	"github.com/ComputClaw/airlock/internal/app/httpapi"
	"github.com/ComputClaw/airlock/internal/app/sandbox"
	"github.com/ComputClaw/airlock/internal/app/services/credential"
	"github.com/ComputClaw/airlock/internal/app/services/dispatcher"
	"github.com/ComputClaw/airlock/internal/app/services/profile"
	"github.com/ComputClaw/airlock/internal/app/storage"
	"github.com/ComputClaw/airlock/internal/app/storage/memory"
	"github.com/ComputClaw/airlock/internal/app/storage/postgres"
	"github.com/ComputClaw/airlock/internal/app/system"
	"github.com/ComputClaw/airlock/internal/config"
	"github.com/ComputClaw/airlock/internal/platform/database"
	"github.com/ComputClaw/airlock/internal/platform/migrations"
	"github.com/ComputClaw/airlock/pkg/logger"
)

// Application owns every constructed component and the manager that drives
// their lifecycle. Callers use Start/Stop; nothing else needs to reach
// inside once the application is built.
type Application struct {
	Config *config.Config
	Log    *logger.Logger

	Credentials *credential.Service
	Profiles    *profile.Service
	Dispatcher  *dispatcher.Dispatcher
	HTTP        *httpapi.Service

	manager *system.Manager
	db      interface{ Close() error }
}

// New builds an Application from cfg: it opens or creates the store, loads
// the master key, derives both purpose-scoped ciphers, constructs the
// service layer and sandbox pool, and registers everything with a system
// manager in dependency order (store-dependent services before the HTTP
// ingress that fronts them).
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.New(logger.LoggingConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})

	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	masterKey, err := crypto.LoadOrCreateMasterKey(filepath.Join(cfg.DataDir, "master.key"))
	if err != nil {
		return nil, err
	}
	credCipher, err := crypto.NewCredentialCipher(masterKey)
	if err != nil {
		return nil, err
	}
	profileCipher, err := crypto.NewProfileSecretCipher(masterKey)
	if err != nil {
		return nil, err
	}

	credentials := credential.New(store, store, credCipher, credential.WithLogger(log))
	profiles := profile.New(store, profileCipher, profile.WithLogger(log))

	backend := sandbox.NewGojaBackend()
	pool := sandbox.NewPool(backend, cfg.WorkerPoolSize)
	dispOpts := []dispatcher.Option{
		dispatcher.WithLogger(log),
		dispatcher.WithLLMWaitTimeout(cfg.LLMWaitTimeout),
		dispatcher.WithDefaultTimeout(cfg.DefaultExecTimeout),
	}
	if cfg.SubmitRateLimit > 0 {
		dispOpts = append(dispOpts, dispatcher.WithSubmitRateLimit(rate.Limit(cfg.SubmitRateLimit), cfg.SubmitRateBurst))
	}
	disp := dispatcher.New(pool, store, dispOpts...)

	httpSvc := httpapi.NewService(cfg.Addr, credentials, profiles, disp, log)

	manager := system.NewManager()
	if err := manager.Register(disp); err != nil {
		return nil, err
	}
	if err := manager.Register(httpSvc); err != nil {
		return nil, err
	}

	for _, d := range manager.Descriptors() {
		log.WithFields(map[string]interface{}{
			"domain":       d.Domain,
			"layer":        string(d.Layer),
			"capabilities": d.Capabilities,
		}).Debug("registered service")
	}

	return &Application{
		Config:      cfg,
		Log:         log,
		Credentials: credentials,
		Profiles:    profiles,
		Dispatcher:  disp,
		HTTP:        httpSvc,
		manager:     manager,
		db:          closer,
	}, nil
}

// Start brings up the dispatcher scheduler and the HTTP listener, in that
// registration order.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop tears down the HTTP listener and dispatcher scheduler in reverse
// order, then closes the database connection if one is open.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// openStore selects the postgres store (applying migrations) when
// cfg.DatabaseURL is set, otherwise the in-memory store (spec §9, "a single
// process, no external dependencies required for the reference
// configuration").
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, interface{ Close() error }, error) {
	if cfg.DatabaseURL == "" {
		return memory.New(), nil, nil
	}

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Apply(ctx, db); err != nil {
		return nil, nil, err
	}
	return postgres.New(db), db, nil
}
