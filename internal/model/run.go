package model

import (
	"time"
)

// RunState represents the current state of an ingestion run.
type RunState string

const (
	RunStatePending         RunState = "pending"
	RunStateFetching        RunState = "fetching"
	RunStateFiltering       RunState = "filtering"
	RunStateCompleted       RunState = "completed"
	RunStatePartiallyFailed RunState = "partially_failed"
	RunStateFailed          RunState = "failed"
)

// Terminal reports whether the state is a terminal one.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateCompleted, RunStatePartiallyFailed, RunStateFailed:
		return true
	default:
		return false
	}
}

// PluginError records a single plugin's failure within a run.
type PluginError struct {
	Plugin string `json:"plugin"`
	Error  string `json:"error"`
}

// PipelineRun is one execution of the ingestion pipeline for one company.
// The orchestrator owns it exclusively while the run is live; callers see
// copies via Snapshot. Counts only increase during a run and are frozen
// once the run reaches a terminal state.
type PipelineRun struct {
	ID           string        `json:"id"`
	Target       CompanyTarget `json:"target"`
	State        RunState      `json:"state"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Plugins      []string      `json:"plugins"`
	Fetched      int           `json:"fetched"`
	Accepted     int           `json:"accepted"`
	Rejected     int           `json:"rejected"`
	Failed       int           `json:"failed"`
	PluginErrors []PluginError `json:"plugin_errors,omitempty"`
	PersistError string        `json:"persist_error,omitempty"`
}

// Snapshot returns a copy of the run safe to hand to readers while the
// orchestrator is still mutating the original.
func (r *PipelineRun) Snapshot() PipelineRun {
	cp := *r
	cp.Plugins = append([]string(nil), r.Plugins...)
	cp.PluginErrors = append([]PluginError(nil), r.PluginErrors...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
