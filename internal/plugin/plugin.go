// Package plugin defines the fetch contract for external signal sources and
// the registry that instantiates them by name.
package plugin

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/signal-ingest/internal/model"
)

// Plugin fetches raw records for one external source given a company
// identity. Implementations perform network I/O but never persist anything
// themselves; persistence is the orchestrator's job.
type Plugin interface {
	// Name returns the source name stamped on every record the plugin emits.
	Name() string
	// Fetch retrieves records about the target, optionally restricted to
	// content published after since. An empty result is not an error.
	Fetch(ctx context.Context, target model.CompanyTarget, since *time.Time) ([]model.RawRecord, error)
}

// ValidateFetchInput enforces the shared input constraints of the Fetch
// contract. Plugins call it before doing any work.
func ValidateFetchInput(target model.CompanyTarget, since *time.Time) error {
	if err := target.Validate(); err != nil {
		return err
	}
	if since != nil && since.After(time.Now()) {
		return eris.New("plugin: since timestamp is in the future")
	}
	return nil
}
