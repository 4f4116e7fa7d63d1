package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/signal-ingest/internal/model"
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

func TestPostgresStore_SaveRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveRun(context.Background(), testRun())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, target, state, plugins`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRunNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Date(2026, 7, 14, 10, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "target", "state", "plugins", "fetched", "accepted", "rejected", "failed",
		"plugin_errors", "persist_error", "started_at", "completed_at",
	}).AddRow(
		"run-1", []byte(`{"name":"Acme Corp"}`), "completed", []byte(`["news"]`),
		3, 2, 1, 0, []byte(`null`), (*string)(nil), started, (*time.Time)(nil),
	)

	mock.ExpectQuery(`SELECT id, target, state, plugins`).
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", run.Target.Name)
	assert.Equal(t, model.RunStateCompleted, run.State)
	assert.Equal(t, []string{"news"}, run.Plugins)
	assert.Equal(t, 3, run.Fetched)
	assert.Nil(t, run.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO records`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO records`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	records := []model.ScoredRecord{
		{RawRecord: model.RawRecord{Source: "news", Title: "Story one"}, Score: 0.9},
		{RawRecord: model.RawRecord{Source: "news", Title: "Story two"}, Score: 0.7},
	}
	err := s.SaveRecords(context.Background(), "run-1", model.CompanyTarget{Name: "Acme Corp"}, records)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRecords_InsertFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO records`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SaveRecords(context.Background(), "run-1", model.CompanyTarget{Name: "Acme Corp"}, []model.ScoredRecord{
		{RawRecord: model.RawRecord{Source: "news"}, Score: 0.5},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert record")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRecords_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.SaveRecords(context.Background(), "run-1", model.CompanyTarget{Name: "Acme Corp"}, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
