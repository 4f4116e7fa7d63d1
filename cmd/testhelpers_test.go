package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-ingest/internal/model"
)

// nopStore satisfies store.Store for wiring tests that never persist.
type nopStore struct{}

func (nopStore) SaveRun(context.Context, *model.PipelineRun) error {
	return nil
}

func (nopStore) SaveRecords(context.Context, string, model.CompanyTarget, []model.ScoredRecord) error {
	return nil
}

func (nopStore) GetRun(context.Context, string) (*model.PipelineRun, error) {
	return nil, eris.New("not implemented")
}

func (nopStore) ListRuns(context.Context, int) ([]model.PipelineRun, error) {
	return nil, nil
}

func (nopStore) ListRecords(context.Context, string, int) ([]model.ScoredRecord, error) {
	return nil, nil
}

func (nopStore) Migrate(context.Context) error { return nil }
func (nopStore) Close() error                  { return nil }
