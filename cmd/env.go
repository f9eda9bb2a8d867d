package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nregatrack/nrega-sync/internal/config"
	"github.com/nregatrack/nrega-sync/internal/resilience"
	"github.com/nregatrack/nrega-sync/internal/source"
	"github.com/nregatrack/nrega-sync/internal/store"
	"github.com/nregatrack/nrega-sync/internal/syncer"
)

// syncEnv holds the initialized components of a sync command.
type syncEnv struct {
	Store  store.Store
	Client *source.Client
	Engine *syncer.Engine
}

// Close releases the store.
func (e *syncEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "nrega.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("database URL is required (NREGA_STORE_DATABASE_URL or DATABASE_URL)")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func newSourceClient(c *config.Config) *source.Client {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = c.Source.MaxRetries + 1

	return source.New(source.Options{
		BaseURL:   c.Source.BaseURL,
		APIKey:    c.Source.APIKey,
		UserAgent: c.Source.UserAgent,
		PageSize:  c.Source.PageSize,
		PageDelay: c.Source.PageDelay(),
		Timeout:   c.Source.Timeout(),
		Retry:     retry,
		Breaker: resilience.BreakerConfig{
			FailureThreshold: uint32(max(c.Breaker.FailureThreshold, 0)),
			ResetTimeout:     time.Duration(c.Breaker.ResetTimeoutSecs) * time.Second,
		},
	})
}

// initSyncEnv opens the store and builds the engine. When migrate is set the
// schema is applied first.
func initSyncEnv(ctx context.Context, migrate bool, observers ...syncer.Observer) (*syncEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	env := &syncEnv{Store: st}

	if migrate {
		if err := st.Migrate(ctx); err != nil {
			env.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
	}

	env.Client = newSourceClient(cfg)
	observers = append([]syncer.Observer{syncer.NewLogObserver()}, observers...)
	env.Engine = syncer.NewEngine(st, env.Client, syncer.Options{
		FinYears:    cfg.Sync.FinYears,
		RegionDelay: cfg.Sync.RegionDelay(),
		Workers:     cfg.Sync.Workers,
	}, observers...)
	return env, nil
}
