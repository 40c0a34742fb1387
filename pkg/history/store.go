// Package history persists the bounded list of finished-run summaries.
// Entries are front-inserted; the oldest fall off the cap silently.
package history

import (
	"context"

	"github.com/quantora/simrun/pkg/run"
)

// DefaultLimit is how many summaries a store retains.
const DefaultLimit = 20

type Store interface {
	// Append front-inserts a summary, evicting beyond the store's limit.
	Append(ctx context.Context, summary run.Summary) error

	// List returns summaries, most recent first.
	List(ctx context.Context) ([]run.Summary, error)

	Close() error
}
