// Package importer loads journal exports from other apps into the
// entry store so the extraction backfill can mine them for signals.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driftline-app/driftline/internal/storage"
)

// ParsedEntry is one dated journal entry recovered from an export.
type ParsedEntry struct {
	Date    time.Time
	Content string
}

// EntrySaver is the slice of the store the importer needs.
type EntrySaver interface {
	SaveEntry(ctx context.Context, e storage.Entry) error
}

type Importer struct {
	store EntrySaver
	log   *slog.Logger
}

func NewImporter(store EntrySaver, log *slog.Logger) *Importer {
	if log == nil {
		log = slog.Default()
	}
	return &Importer{store: store, log: log}
}

// Import persists parsed entries under userID, stamped with their
// original dates so downstream consumers treat them as history, not
// fresh writing. It returns the stored entries for backfill
// processing.
func (im *Importer) Import(ctx context.Context, userID string, parsed []ParsedEntry) ([]storage.Entry, error) {
	entries := make([]storage.Entry, 0, len(parsed))
	for _, p := range parsed {
		if p.Content == "" {
			continue
		}
		e := storage.Entry{
			ID:                uuid.New().String(),
			UserID:            userID,
			Content:           p.Content,
			ExtractionVersion: 1,
			CreatedAt:         p.Date,
			UpdatedAt:         p.Date,
		}
		if err := im.store.SaveEntry(ctx, e); err != nil {
			return entries, fmt.Errorf("saving imported entry dated %s: %w", p.Date.Format("2006-01-02"), err)
		}
		entries = append(entries, e)
	}
	im.log.Info("imported journal entries", "user_id", userID, "count", len(entries))
	return entries, nil
}
