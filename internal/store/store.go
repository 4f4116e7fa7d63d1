// Package store persists pipeline runs and the signal records that survived
// filtering. Two backends are available: SQLite for local use and Postgres
// for shared deployments.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-ingest/internal/model"
)

// ErrRunNotFound is returned by GetRun when no run has the given id.
var ErrRunNotFound = eris.New("store: run not found")

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// SaveRun upserts a run snapshot. Called once per run after it reaches
	// a terminal state, but safe to call mid-run for checkpointing.
	SaveRun(ctx context.Context, run *model.PipelineRun) error
	// SaveRecords persists the accepted records of one run.
	SaveRecords(ctx context.Context, runID string, target model.CompanyTarget, records []model.ScoredRecord) error

	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, limit int) ([]model.PipelineRun, error)
	ListRecords(ctx context.Context, company string, limit int) ([]model.ScoredRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the backend selected by driver: "sqlite" or "postgres".
func Open(ctx context.Context, driver, databaseURL, sqlitePath string) (Store, error) {
	switch driver {
	case "sqlite", "":
		if sqlitePath == "" {
			sqlitePath = "signal-ingest.db"
		}
		return NewSQLite(sqlitePath)
	case "postgres":
		return NewPostgres(ctx, databaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
