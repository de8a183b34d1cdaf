package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bibmerge/internal/config"
	"github.com/sells-group/bibmerge/internal/engine"
	"github.com/sells-group/bibmerge/internal/ingest"
	"github.com/sells-group/bibmerge/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// appEnv is an opened, migrated store and an engine hydrated from it.
// Writers also hold the store's writer lock until Close.
type appEnv struct {
	Store   store.Store
	Engine  *engine.Engine
	release func()
}

func (e *appEnv) Close() {
	if e.release != nil {
		e.release()
	}
	_ = e.Store.Close()
}

func initEngine(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	env := &appEnv{Store: st}
	// The lock is taken before Load so a writer never starts from state
	// another writer is still changing.
	if mode == "ingest" {
		release, err := st.LockWriter(ctx)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "acquire writer lock")
		}
		env.release = release
	}
	env.Engine = engine.New(st, engineConfig(cfg))
	if err := env.Engine.Load(ctx); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func engineConfig(c *config.Config) engine.Config {
	return engine.Config{
		TitleSimilarity:        c.Match.TitleSimilarity,
		NameSimilarity:         c.Author.NameSimilarity,
		SharedNamespaceAuthors: c.Match.SharedNamespaceAuthors,
		DateToleranceDays:      c.Release.DateToleranceDays,
	}
}

func batchConfig(c *config.Config, source string) ingest.Config {
	return ingest.Config{
		DecodeWorkers:    c.Batch.DecodeWorkers,
		MaxRecordsPerSec: c.Batch.MaxRecordsPerSec,
		HistoryDir:       c.Batch.HistoryDir,
		CommitAttempts:   c.Batch.CommitAttempts,
		DLQMaxRetries:    c.DLQ.MaxRetries,
		DLQBackoff:       time.Duration(c.DLQ.BackoffSecs) * time.Second,
		BreakerThreshold: c.Batch.BreakerThreshold,
		BreakerCooldown:  time.Duration(c.Batch.BreakerCooldownSecs) * time.Second,
		Decoder:          ingest.Decoder{Source: source},
	}
}
