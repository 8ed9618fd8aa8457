package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/firecast/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS predictions (
	id               TEXT PRIMARY KEY,
	operation        TEXT NOT NULL,
	input            TEXT NOT NULL,
	prediction_log   REAL NOT NULL,
	prediction_acres REAL NOT NULL,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
CREATE INDEX IF NOT EXISTS idx_predictions_operation ON predictions(operation);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Ping verifies the database file is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) RecordPrediction(ctx context.Context, entry model.PredictionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	inputJSON, err := json.Marshal(entry.Input)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal input")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, operation, input, prediction_log, prediction_acres, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Operation), string(inputJSON), entry.PredictionLog, entry.PredictionAcres, entry.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: record prediction")
}

func (s *SQLiteStore) ListPredictions(ctx context.Context, limit int) ([]model.PredictionLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation, input, prediction_log, prediction_acres, created_at FROM predictions ORDER BY created_at DESC, id LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list predictions")
	}
	defer rows.Close()

	var out []model.PredictionLog
	for rows.Next() {
		var (
			entry     model.PredictionLog
			op        string
			inputJSON string
		)
		if err := rows.Scan(&entry.ID, &op, &inputJSON, &entry.PredictionLog, &entry.PredictionAcres, &entry.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prediction")
		}
		entry.Operation = model.Operation(op)
		if err := json.Unmarshal([]byte(inputJSON), &entry.Input); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal input")
		}
		out = append(out, entry)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list predictions iterate")
}
