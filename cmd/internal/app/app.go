// Package app wires the sessiond runtime: config, logging, storage, the session
// service and its HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sessiond/cmd/identity"
	authapi "sessiond/cmd/internal/auth/api"
	"sessiond/cmd/internal/auth/guard"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/internal/db"
	"sessiond/cmd/security/password"
	"sessiond/cmd/security/token"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// accountDirectory is what the app needs from an account store: reads for
// login and the guard, writes for dev seeding.
type accountDirectory interface {
	identity.Store
	identity.Writer
}

// App is the sessiond server runtime.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool
	redis  *redis.Client

	registry *prometheus.Registry
	sessions *session.Service
	auth     *authapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	a := &App{cfg: cfg, log: log}

	if err := a.openDB(ctx); err != nil {
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) openDB(ctx context.Context) error {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return nil
	}

	if a.cfg.AutoMigrate {
		if err := db.Migrate(a.cfg.DatabaseURL, "up"); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		a.log.Info("db.migrated")
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.dbPool = pool
	a.log.Info("db.enabled.postgres_store")
	return nil
}

func (a *App) wire(ctx context.Context) error {
	passwords := a.cfg.PasswordConfig()
	if err := passwords.ValidateParams(); err != nil {
		return err
	}

	var (
		accounts accountDirectory
		store    session.Store
		auditor  authapi.Auditor
	)
	if a.dbPool != nil {
		pgAccounts, err := identity.NewPostgresStore(a.dbPool)
		if err != nil {
			return err
		}
		accounts = pgAccounts
		store = session.NewPostgresStore(a.dbPool)
		auditor = authapi.NewPostgresAuditor(a.dbPool, a.log)
	} else {
		accounts = identity.NewMemoryStore()
		store = session.NewMemoryStore()
		auditor = authapi.NewMemoryAuditor()
	}

	if err := seedDevUser(ctx, a.cfg, accounts, passwords, a.log); err != nil {
		return err
	}

	g, err := a.newGuard(ctx, accounts)
	if err != nil {
		return err
	}

	codec, err := token.New(a.cfg.TokenConfig())
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}
	if pk, ok := codec.(token.PublicKeyer); ok {
		a.log.Info("token.public_key", "format", a.cfg.TokenFormat, "public_key_hex", pk.PublicKeyHex())
	}

	opts := []session.Option{session.WithLogger(a.log)}
	if a.cfg.MetricsEnabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, session.WithMetrics(session.NewMetrics(a.registry)))
	}

	a.sessions, err = session.NewService(a.cfg.SessionConfig(), store, codec, g, opts...)
	if err != nil {
		return err
	}

	a.auth, err = authapi.NewHandler(a.log, a.cfg.APIConfig(), a.sessions, accounts, passwords,
		authapi.WithAuditor(auditor),
	)
	return err
}

// newGuard returns the account guard, fronted by the Redis facts cache when configured.
func (a *App) newGuard(ctx context.Context, accounts identity.Store) (guard.Guard, error) {
	base := guard.NewAccountGuard(accounts)
	if strings.TrimSpace(a.cfg.RedisURL) == "" || a.cfg.GuardCacheTTL <= 0 {
		return base, nil
	}

	opts, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// The cache falls through to the account store on every Redis error.
		a.log.Warn("redis.unreachable", "err", err)
	}

	a.redis = rdb
	a.log.Info("guard.cache.enabled", "ttl", a.cfg.GuardCacheTTL.String())
	return guard.NewRedisCache(base, rdb, a.cfg.GuardCacheTTL, a.log), nil
}

// seedDevUser creates the configured dev account once. An existing account is left alone.
func seedDevUser(ctx context.Context, cfg Config, accounts identity.Writer, passwords password.Config, log Logger) error {
	user := strings.TrimSpace(cfg.DevUser)
	if user == "" || cfg.DevPassword == "" {
		return nil
	}

	hash, err := passwords.Hash(cfg.DevPassword)
	if err != nil {
		return fmt.Errorf("dev user: %w", err)
	}
	acc, err := accounts.CreateAccount(ctx, identity.CreateAccountInput{
		Username:     user,
		PasswordHash: hash,
		Role:         identity.RoleAdmin,
	})
	if identity.IsConflict(err) {
		log.Info("dev_user.exists", "username", identity.NormalizeUsername(user))
		return nil
	}
	if err != nil {
		return fmt.Errorf("dev user: %w", err)
	}
	log.Warn("dev_user.seeded", "username", acc.Username, "account_id", acc.ID)
	return nil
}

// Handler returns the full middleware chain around the route mux.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	var gatherer prometheus.Gatherer
	if a.registry != nil {
		gatherer = a.registry
	}
	registerHTTP(mux, a.log, a.cfg, a.dbPool, gatherer, a.auth)

	var h http.Handler = mux
	h = WithSecurityHeaders(h)
	h = WithCORS(h, a.cfg, a.log)
	return WithRequestLogging(h, a.log)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbPool != nil,
		"rotation_enabled", a.cfg.RotationEnabled,
		"rotation_grace_seconds", a.cfg.RotationGraceSeconds,
		"token_format", a.cfg.TokenFormat,
	)

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
		a.close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.close()
		return err
	}
	a.close()

	a.log.Info("server.stopped")
	return nil
}

// close releases the pool and the Redis client. The app owns both.
func (a *App) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
		a.redis = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
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
