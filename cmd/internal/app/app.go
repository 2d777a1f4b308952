// Package app wires the Pulse server runtime: config, logging, auth HTTP
// endpoints, and the realtime websocket gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pulse/cmd/identity"
	"pulse/cmd/internal/auth/api"
	"pulse/cmd/internal/auth/session"
	"pulse/cmd/internal/auth/token"
	"pulse/cmd/internal/realtime"
)

// App is the Pulse server runtime.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	auth *api.Handler
	ws   *realtime.WSGateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(cfg.TokenConfig())
	if err != nil {
		return nil, err
	}

	var (
		dbPool       *pgxpool.Pool
		idStore      identity.Store
		sessStore    session.Store
		participants realtime.ParticipantStore
	)

	if cfg.DatabaseURL != "" {
		dbPool, err = NewDBPool(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		log.Info("db.enabled.postgres_store")

		pgIdentity, err := identity.NewPostgresStore(dbPool)
		if err != nil {
			dbPool.Close()
			return nil, err
		}
		pgParticipants, err := realtime.NewPostgresParticipantStore(dbPool)
		if err != nil {
			dbPool.Close()
			return nil, err
		}

		idStore = pgIdentity
		sessStore = session.NewPostgresStore(dbPool)
		participants = pgParticipants
	} else {
		log.Info("db.disabled.inmemory_store")
		idStore = identity.NewInMemoryStore()
		sessStore = session.NewInMemoryStore()
		participants = realtime.NewInMemoryParticipantStore()
	}

	sessions := session.NewService(tokens, sessStore)

	authHandler, err := api.NewHandler(log, cfg.AuthConfig(), idStore, sessions, tokens)
	if err != nil {
		if dbPool != nil {
			dbPool.Close()
		}
		return nil, err
	}

	presence := realtime.NewRegistry(log)
	bus := realtime.NewBus(log)
	router := realtime.NewRouter(log, presence, participants)
	bus.Subscribe(router.Dispatch)

	ws, err := realtime.NewWSGateway(log, cfg.GatewayConfig(), tokens, presence, bus, idStore)
	if err != nil {
		if dbPool != nil {
			dbPool.Close()
		}
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    dbPool,
		dbEnabled: dbPool != nil,
		auth:      authHandler,
		ws:        ws,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or a fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.ws, a.auth)

	handler := WithRequestLogging(WithCORS(mux, a.cfg, a.log), a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
