package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/firecast/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS predictions`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordPrediction(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO predictions`).
		WithArgs(pgxmock.AnyArg(), "predict", []byte(`{"ndvi":0.3}`), 2.5, 316.22776601683796, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordPrediction(context.Background(), model.PredictionLog{
		Operation:       model.OperationPredict,
		Input:           map[string]float64{"ndvi": 0.3},
		PredictionLog:   2.5,
		PredictionAcres: 316.22776601683796,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordPrediction_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO predictions`).
		WillReturnError(errors.New("connection reset"))

	err := s.RecordPrediction(context.Background(), model.PredictionLog{
		ID:        "fixed",
		Operation: model.OperationExplain,
		Input:     map[string]float64{},
		CreatedAt: time.Now(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record prediction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPredictions(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"id", "operation", "input", "prediction_log", "prediction_acres", "created_at"}).
		AddRow("b", "explain", []byte(`{"slope":5}`), 2.0, 100.0, now).
		AddRow("a", "predict", []byte(`{"slope":1}`), 1.0, 10.0, now.Add(-time.Minute))
	mock.ExpectQuery(`SELECT id, operation, input, prediction_log, prediction_acres, created_at FROM predictions`).
		WithArgs(5).
		WillReturnRows(rows)

	got, err := s.ListPredictions(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, model.OperationExplain, got[0].Operation)
	assert.Equal(t, map[string]float64{"slope": 5}, got[0].Input)
	assert.Equal(t, 100.0, got[0].PredictionAcres)
	assert.Equal(t, now, got[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListPredictions_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM predictions`).
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows([]string{"id", "operation", "input", "prediction_log", "prediction_acres", "created_at"}))

	got, err := s.ListPredictions(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectPing().WillReturnError(errors.New("down"))

	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}
