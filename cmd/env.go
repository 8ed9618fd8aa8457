package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/firecast/internal/artifact"
	"github.com/sells-group/firecast/internal/config"
	"github.com/sells-group/firecast/internal/metrics"
	"github.com/sells-group/firecast/internal/resilience"
	"github.com/sells-group/firecast/internal/service"
	"github.com/sells-group/firecast/internal/store"
)

// serviceEnv holds the loaded artifacts, the optional audit store and the
// service built on them, as needed by the serve/predict/model commands.
type serviceEnv struct {
	Store   store.Store // may be nil
	Metrics *metrics.Metrics
	Service *service.Service
}

// Close releases resources held by the environment.
func (se *serviceEnv) Close() {
	if se.Store != nil {
		_ = se.Store.Close()
	}
}

func artifactPaths(c *config.Config) artifact.Paths {
	return artifact.Paths{
		Dir:       c.Artifacts.Dir,
		Scalers:   c.Artifacts.Scalers,
		Model:     c.Artifacts.Model,
		Explainer: c.Artifacts.Explainer,
	}
}

// initService loads artifacts and builds the service. withStore opens the
// configured audit store; one-shot commands pass false. Callers should defer
// env.Close().
func initService(ctx context.Context, c *config.Config, withStore bool) (*serviceEnv, error) {
	set, err := artifact.Load(ctx, artifactPaths(c))
	if err != nil {
		return nil, err
	}

	env := &serviceEnv{Metrics: metrics.New()}
	if withStore {
		st, err := initStore(ctx, c)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}

	opts := service.Options{
		TopK:       c.Explain.TopK,
		CacheSize:  c.Cache.Size,
		NumSamples: c.Explain.NumSamples,
		Seed:       c.Explain.Seed,
		Metrics:    env.Metrics,
	}
	if env.Store != nil {
		opts.Recorder = service.GuardRecorder(env.Store, resilience.Config{
			FailureThreshold: c.Store.BreakerFailures,
			ResetTimeout:     time.Duration(c.Store.BreakerResetSecs) * time.Second,
		})
	}
	svc, err := service.New(set, opts)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Service = svc
	return env, nil
}

// initStore opens and migrates the audit store. It returns nil when the
// driver is "none".
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, store.Config{
		Driver:      c.Store.Driver,
		DatabaseURL: c.Store.DatabaseURL,
		Pool: store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}
