// Package store persists an audit trail of served predictions.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/firecast/internal/model"
)

// Supported drivers.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// defaultListLimit caps ListPredictions when no limit is given.
const defaultListLimit = 100

// Store defines the persistence interface for prediction audit records.
type Store interface {
	RecordPrediction(ctx context.Context, entry model.PredictionLog) error
	ListPredictions(ctx context.Context, limit int) ([]model.PredictionLog, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and locates the audit backend.
type Config struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// Open connects to the configured backend and runs its migration. The
// "none" driver (or an empty driver) returns a nil Store and no error.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverSQLite:
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: sqlite requires database_url")
		}
		st, err = NewSQLite(cfg.DatabaseURL)
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: postgres requires database_url")
		}
		st, err = NewPostgres(ctx, cfg.DatabaseURL, &cfg.Pool)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
