package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/firecast/internal/db"
	"github.com/sells-group/firecast/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS predictions (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	operation        TEXT NOT NULL,
	input            JSONB NOT NULL,
	prediction_log   DOUBLE PRECISION NOT NULL,
	prediction_acres DOUBLE PRECISION NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_predictions_operation ON predictions(operation);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Ping verifies the pool can reach the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) RecordPrediction(ctx context.Context, entry model.PredictionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	inputJSON, err := json.Marshal(entry.Input)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal input")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO predictions (id, operation, input, prediction_log, prediction_acres, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, string(entry.Operation), inputJSON, entry.PredictionLog, entry.PredictionAcres, entry.CreatedAt,
	)
	return eris.Wrap(err, "postgres: record prediction")
}

func (s *PostgresStore) ListPredictions(ctx context.Context, limit int) ([]model.PredictionLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, operation, input, prediction_log, prediction_acres, created_at FROM predictions ORDER BY created_at DESC, id LIMIT $1`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list predictions")
	}
	defer rows.Close()

	var out []model.PredictionLog
	for rows.Next() {
		var (
			entry     model.PredictionLog
			op        string
			inputJSON []byte
		)
		if err := rows.Scan(&entry.ID, &op, &inputJSON, &entry.PredictionLog, &entry.PredictionAcres, &entry.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prediction")
		}
		entry.Operation = model.Operation(op)
		if err := json.Unmarshal(inputJSON, &entry.Input); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal input")
		}
		out = append(out, entry)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list predictions iterate")
}
