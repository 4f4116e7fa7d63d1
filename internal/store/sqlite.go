package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/signal-ingest/internal/model"
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
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	company       TEXT NOT NULL,
	target        TEXT NOT NULL,
	state         TEXT NOT NULL,
	plugins       TEXT NOT NULL,
	fetched       INTEGER NOT NULL DEFAULT 0,
	accepted      INTEGER NOT NULL DEFAULT 0,
	rejected      INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	plugin_errors TEXT,
	persist_error TEXT,
	started_at    DATETIME NOT NULL,
	completed_at  DATETIME
);

CREATE TABLE IF NOT EXISTS records (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES runs(id),
	company      TEXT NOT NULL,
	source       TEXT NOT NULL,
	title        TEXT,
	body         TEXT,
	url          TEXT,
	published_at DATETIME,
	score        REAL NOT NULL,
	metadata     TEXT,
	embedding    TEXT,
	saved_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_company ON runs(company);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);
CREATE INDEX IF NOT EXISTS idx_records_company ON records(company);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.PipelineRun) error {
	targetJSON, err := json.Marshal(run.Target)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal target")
	}
	pluginsJSON, err := json.Marshal(run.Plugins)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal plugins")
	}
	errorsJSON, err := json.Marshal(run.PluginErrors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal plugin errors")
	}

	var completedAt any
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, company, target, state, plugins, fetched, accepted, rejected, failed,
		                   plugin_errors, persist_error, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   state = excluded.state,
		   fetched = excluded.fetched,
		   accepted = excluded.accepted,
		   rejected = excluded.rejected,
		   failed = excluded.failed,
		   plugin_errors = excluded.plugin_errors,
		   persist_error = excluded.persist_error,
		   completed_at = excluded.completed_at`,
		run.ID, run.Target.Name, string(targetJSON), string(run.State), string(pluginsJSON),
		run.Fetched, run.Accepted, run.Rejected, run.Failed,
		string(errorsJSON), run.PersistError, run.StartedAt.UTC(), completedAt,
	)
	return eris.Wrapf(err, "sqlite: save run %s", run.ID)
}

func (s *SQLiteStore) SaveRecords(ctx context.Context, runID string, target model.CompanyTarget, records []model.ScoredRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (id, run_id, company, source, title, body, url, published_at, score, metadata, embedding, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert record")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range records {
		metaJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal metadata")
		}
		embJSON, err := json.Marshal(rec.Embedding)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal embedding")
		}

		var publishedAt any
		if rec.PublishedAt != nil {
			publishedAt = rec.PublishedAt.UTC()
		}

		_, err = stmt.ExecContext(ctx,
			uuid.New().String(), runID, target.Name, rec.Source,
			rec.Title, rec.Body, rec.URL, publishedAt, rec.Score, string(metaJSON), string(embJSON), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert record for run %s", runID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit records")
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, target, state, plugins, fetched, accepted, rejected, failed,
		        plugin_errors, persist_error, started_at, completed_at
		 FROM runs WHERE id = ?`,
		runID,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrRunNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.PipelineRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target, state, plugins, fetched, accepted, rejected, failed,
		        plugin_errors, persist_error, started_at, completed_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ListRecords(ctx context.Context, company string, limit int) ([]model.ScoredRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, title, body, url, published_at, score, metadata, embedding
		 FROM records WHERE company = ? ORDER BY saved_at DESC, score DESC LIMIT ?`,
		company, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var records []model.ScoredRecord
	for rows.Next() {
		var rec model.ScoredRecord
		var publishedAt sql.NullTime
		var metaJSON, embJSON sql.NullString

		err := rows.Scan(&rec.Source, &rec.Title, &rec.Body, &rec.URL, &publishedAt, &rec.Score, &metaJSON, &embJSON)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		if publishedAt.Valid {
			t := publishedAt.Time
			rec.PublishedAt = &t
		}
		if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
			if err := json.Unmarshal([]byte(metaJSON.String), &rec.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal metadata")
			}
		}
		if embJSON.Valid && embJSON.String != "" && embJSON.String != "null" {
			if err := json.Unmarshal([]byte(embJSON.String), &rec.Embedding); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal embedding")
			}
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.PipelineRun, error) {
	var run model.PipelineRun
	var targetJSON, pluginsJSON string
	var errorsJSON, persistError sql.NullString
	var state string
	var completedAt sql.NullTime

	err := row.Scan(&run.ID, &targetJSON, &state, &pluginsJSON,
		&run.Fetched, &run.Accepted, &run.Rejected, &run.Failed,
		&errorsJSON, &persistError, &run.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	run.State = model.RunState(state)
	if err := json.Unmarshal([]byte(targetJSON), &run.Target); err != nil {
		return nil, eris.Wrap(err, "unmarshal target")
	}
	if err := json.Unmarshal([]byte(pluginsJSON), &run.Plugins); err != nil {
		return nil, eris.Wrap(err, "unmarshal plugins")
	}
	if errorsJSON.Valid && errorsJSON.String != "" && errorsJSON.String != "null" {
		if err := json.Unmarshal([]byte(errorsJSON.String), &run.PluginErrors); err != nil {
			return nil, eris.Wrap(err, "unmarshal plugin errors")
		}
	}
	if persistError.Valid {
		run.PersistError = persistError.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}
