package worker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/driftline-app/driftline/internal/signal"
	"github.com/driftline-app/driftline/internal/storage"
)

const defaultBackfillConcurrency = 3

// Reprocessor re-runs extraction for an edited or historical entry.
// Implemented by signal.Processor.
type Reprocessor interface {
	Reprocess(ctx context.Context, entryID, text string) (signal.Result, error)
}

// Backfill re-extracts signals for a set of entries concurrently,
// bounded to a fixed number of in-flight comprehension calls. The
// first failure cancels the remaining work.
func Backfill(ctx context.Context, proc Reprocessor, entries []storage.Entry, concurrency int) error {
	if concurrency <= 0 {
		concurrency = defaultBackfillConcurrency
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, entry := range entries {
		g.Go(func() error {
			res, err := proc.Reprocess(ctx, entry.ID, entry.Content)
			if err != nil {
				return fmt.Errorf("backfilling entry %s: %w", entry.ID, err)
			}
			if res.Stale {
				// Another writer got there first; its result stands.
				slog.Info("backfill superseded", "entry_id", entry.ID)
			}
			return nil
		})
	}

	return g.Wait()
}
