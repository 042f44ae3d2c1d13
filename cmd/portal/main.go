package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/practicebynumbers/portal/internal/api"
	"github.com/practicebynumbers/portal/internal/core/ports"
	"github.com/practicebynumbers/portal/internal/core/service"
	"github.com/practicebynumbers/portal/internal/infrastructure/config"
	mongodb "github.com/practicebynumbers/portal/internal/infrastructure/db/mongo"
	redisdb "github.com/practicebynumbers/portal/internal/infrastructure/db/redis"
	"github.com/practicebynumbers/portal/internal/infrastructure/gateway"
	"github.com/practicebynumbers/portal/internal/infrastructure/queue"
	"github.com/practicebynumbers/portal/internal/infrastructure/storage/file"
	"github.com/practicebynumbers/portal/internal/infrastructure/storage/memory"
	"github.com/practicebynumbers/portal/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// @title        Practice Portal API
// @version      1.0
// @description  Backend for the practice portal: sessions, role routing and the approval workflow.
// @BasePath     /

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		l := logger.Init(logger.Options{})
		l.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.Development(),
		Service: "practice-portal",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("portal stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	rdb, err := connectRedis(ctx, cfg, log)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	db, decisions, err := connectJournal(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Client().Disconnect(dctx)
		}()
	}

	storage, err := sessionStorage(cfg, rdb)
	if err != nil {
		return err
	}

	gateways, err := gateway.NewFactory(cfg.Gateway.BaseURL, cfg.Gateway.Timeout, logger.Component("gateway"))
	if err != nil {
		return err
	}

	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	journal := queue.NewDispatcher(cfg.Audit.Workers, decisions, logger.Component("journal"))
	journal.Start(workerCtx)

	wsCfg := service.WorkspaceConfig{
		NewGateway: func(scope string, store ports.SessionStorage) ports.Gateway {
			return gateways.ForScope(scope, store)
		},
		NewStorage:  storage,
		Journal:     journal,
		SessionKey:  cfg.Session.Key,
		CallTimeout: cfg.Gateway.Timeout,
		IdleTTL:     cfg.Session.IdleTTL,
		Log:         logger.Component("workspace"),
	}
	if rdb != nil {
		wsCfg.Guard = redisdb.NewInflightGuard(rdb, 2*cfg.Gateway.Timeout)
	}

	e := api.NewRouter(api.RouterDeps{
		Workspaces:    service.NewWorkspaces(wsCfg),
		Decisions:     decisions,
		ScopeSecret:   secret(cfg.ScopeSecret, "SCOPE_SECRET", log),
		FlashSecret:   secret(cfg.FlashSecret, "FLASH_SECRET", log),
		SecureCookies: !cfg.Development(),
		Mongo:         db,
		Redis:         rdb,
		Log:           logger.Component("http"),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Str("sessions", cfg.Session.Backend).Msg("portal listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	journal.Close()
	log.Info().Msg("portal stopped gracefully")
	return nil
}

// connectRedis is mandatory for the redis session backend. Otherwise Redis
// only backs the in-flight lock and a failed connection disables it.
func connectRedis(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*goredis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err != nil {
		if cfg.Session.Backend == config.BackendRedis {
			return nil, err
		}
		log.Warn().Err(err).Msg("redis unavailable, in-flight lock disabled")
		return nil, nil
	}
	return rdb, nil
}

// connectJournal uses MongoDB when MONGO_URI is set and an in-process log
// otherwise.
func connectJournal(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*mongodriver.Database, ports.DecisionRepository, error) {
	if cfg.Mongo.URI == "" {
		log.Info().Msg("MONGO_URI not set, decisions kept in memory")
		return nil, memory.NewDecisionLog(), nil
	}
	_, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return nil, nil, err
	}
	repo := mongodb.NewDecisionRepository(db)
	if err := repo.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("decision indexes not ensured")
	}
	return db, repo, nil
}

func sessionStorage(cfg *config.Config, rdb *goredis.Client) (func(scope string) ports.SessionStorage, error) {
	switch cfg.Session.Backend {
	case config.BackendRedis:
		return func(scope string) ports.SessionStorage {
			return redisdb.NewSessionStorage(rdb, scope, cfg.Session.TTL)
		}, nil
	case config.BackendFile:
		store, err := file.New(cfg.Session.Dir)
		if err != nil {
			return nil, err
		}
		return func(scope string) ports.SessionStorage { return store.Scoped(scope) }, nil
	default:
		store := memory.New()
		return func(scope string) ports.SessionStorage { return store.Scoped(scope) }, nil
	}
}

// secret returns the configured key, or a random one for this process in
// development. Cookies signed with a random key die with the process.
func secret(value, name string, log zerolog.Logger) []byte {
	if value != "" {
		return []byte(value)
	}
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	log.Warn().Str("key", name).Msg("not set, using a random key for this process")
	return key
}
