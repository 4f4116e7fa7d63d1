package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-ingest/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
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
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	company       TEXT NOT NULL,
	target        JSONB NOT NULL,
	state         TEXT NOT NULL,
	plugins       JSONB NOT NULL,
	fetched       INTEGER NOT NULL DEFAULT 0,
	accepted      INTEGER NOT NULL DEFAULT 0,
	rejected      INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	plugin_errors JSONB,
	persist_error TEXT,
	started_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS records (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	company      TEXT NOT NULL,
	source       TEXT NOT NULL,
	title        TEXT,
	body         TEXT,
	url          TEXT,
	published_at TIMESTAMPTZ,
	score        DOUBLE PRECISION NOT NULL,
	metadata     JSONB,
	embedding    JSONB,
	saved_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_company ON runs(company);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);
CREATE INDEX IF NOT EXISTS idx_records_company ON records(company);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.PipelineRun) error {
	targetJSON, err := json.Marshal(run.Target)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal target")
	}
	pluginsJSON, err := json.Marshal(run.Plugins)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal plugins")
	}
	errorsJSON, err := json.Marshal(run.PluginErrors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal plugin errors")
	}

	var completedAt *time.Time
	if run.CompletedAt != nil {
		t := run.CompletedAt.UTC()
		completedAt = &t
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, company, target, state, plugins, fetched, accepted, rejected, failed,
		                   plugin_errors, persist_error, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		   state = EXCLUDED.state,
		   fetched = EXCLUDED.fetched,
		   accepted = EXCLUDED.accepted,
		   rejected = EXCLUDED.rejected,
		   failed = EXCLUDED.failed,
		   plugin_errors = EXCLUDED.plugin_errors,
		   persist_error = EXCLUDED.persist_error,
		   completed_at = EXCLUDED.completed_at`,
		run.ID, run.Target.Name, targetJSON, string(run.State), pluginsJSON,
		run.Fetched, run.Accepted, run.Rejected, run.Failed,
		errorsJSON, run.PersistError, run.StartedAt.UTC(), completedAt,
	)
	return eris.Wrapf(err, "postgres: save run %s", run.ID)
}

func (s *PostgresStore) SaveRecords(ctx context.Context, runID string, target model.CompanyTarget, records []model.ScoredRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	for _, rec := range records {
		metaJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal metadata")
		}
		embJSON, err := json.Marshal(rec.Embedding)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal embedding")
		}

		var publishedAt *time.Time
		if rec.PublishedAt != nil {
			t := rec.PublishedAt.UTC()
			publishedAt = &t
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO records (id, run_id, company, source, title, body, url, published_at, score, metadata, embedding, saved_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			uuid.New().String(), runID, target.Name, rec.Source,
			rec.Title, rec.Body, rec.URL, publishedAt, rec.Score, metaJSON, embJSON, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert record for run %s", runID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit records")
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, target, state, plugins, fetched, accepted, rejected, failed,
		        plugin_errors, persist_error, started_at, completed_at
		 FROM runs WHERE id = $1`,
		runID,
	)
	run, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.PipelineRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, target, state, plugins, fetched, accepted, rejected, failed,
		        plugin_errors, persist_error, started_at, completed_at
		 FROM runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ListRecords(ctx context.Context, company string, limit int) ([]model.ScoredRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT source, title, body, url, published_at, score, metadata, embedding
		 FROM records WHERE company = $1 ORDER BY saved_at DESC, score DESC LIMIT $2`,
		company, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var records []model.ScoredRecord
	for rows.Next() {
		var rec model.ScoredRecord
		var publishedAt *time.Time
		var metaJSON, embJSON []byte

		err := rows.Scan(&rec.Source, &rec.Title, &rec.Body, &rec.URL, &publishedAt, &rec.Score, &metaJSON, &embJSON)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		rec.PublishedAt = publishedAt
		if len(metaJSON) > 0 && string(metaJSON) != "null" {
			if err := json.Unmarshal(metaJSON, &rec.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal metadata")
			}
		}
		if len(embJSON) > 0 && string(embJSON) != "null" {
			if err := json.Unmarshal(embJSON, &rec.Embedding); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal embedding")
			}
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func scanPgRun(row scannable) (*model.PipelineRun, error) {
	var run model.PipelineRun
	var targetJSON, pluginsJSON, errorsJSON []byte
	var persistError *string
	var state string
	var completedAt *time.Time

	err := row.Scan(&run.ID, &targetJSON, &state, &pluginsJSON,
		&run.Fetched, &run.Accepted, &run.Rejected, &run.Failed,
		&errorsJSON, &persistError, &run.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	run.State = model.RunState(state)
	if err := json.Unmarshal(targetJSON, &run.Target); err != nil {
		return nil, eris.Wrap(err, "unmarshal target")
	}
	if err := json.Unmarshal(pluginsJSON, &run.Plugins); err != nil {
		return nil, eris.Wrap(err, "unmarshal plugins")
	}
	if len(errorsJSON) > 0 && string(errorsJSON) != "null" {
		if err := json.Unmarshal(errorsJSON, &run.PluginErrors); err != nil {
			return nil, eris.Wrap(err, "unmarshal plugin errors")
		}
	}
	if persistError != nil {
		run.PersistError = *persistError
	}
	run.CompletedAt = completedAt
	return &run, nil
}
