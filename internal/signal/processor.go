package signal

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// EntryStore is what the Processor needs from persistence. Implemented
// by storage.Store. ReplaceEntrySignals deletes all prior signals for
// the entry and inserts the new set in one transaction.
type EntryStore interface {
	GetExtractionVersion(ctx context.Context, entryID string) (int, error)
	BumpExtractionVersion(ctx context.Context, entryID string) (int, error)
	ReplaceEntrySignals(ctx context.Context, entryID string, signals []Signal) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Result is the outcome of processing one entry.
type Result struct {
	Signals            []Signal
	HasTemporalContent bool
	// Stale means the entry was edited while extraction was running;
	// nothing was written and the caller should not retry with the
	// same version.
	Stale bool
}

type extractor interface {
	Extract(ctx context.Context, text string, ref time.Time) ([]Signal, bool, error)
}

// Processor runs extraction against a specific entry and guards the
// write with an optimistic version check.
type Processor struct {
	extract extractor
	store   EntryStore
	clock   Clock
	log     *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(ext extractor, store EntryStore, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{extract: ext, store: store, clock: realClock{}, log: log}
}

// NewProcessorWithClock creates a Processor with a custom clock (tests).
func NewProcessorWithClock(ext extractor, store EntryStore, clock Clock, log *slog.Logger) *Processor {
	p := NewProcessor(ext, store, log)
	p.clock = clock
	return p
}

// Process extracts signals from text on behalf of the entry and
// persists them, unless the entry's extraction version moved while the
// slow extraction call was in flight. The version check is advisory
// and happens once, after extraction returns; concurrent runs for the
// same entry are allowed and only the one whose version still matches
// commits.
func (p *Processor) Process(ctx context.Context, entryID, text string, extractionVersion int) (Result, error) {
	signals, hasTemporal, err := p.extract.Extract(ctx, text, p.clock.Now())
	if err != nil {
		return Result{}, fmt.Errorf("extracting signals for entry %s: %w", entryID, err)
	}

	current, err := p.store.GetExtractionVersion(ctx, entryID)
	if err != nil {
		return Result{}, fmt.Errorf("reading extraction version for entry %s: %w", entryID, err)
	}
	if current != extractionVersion {
		p.log.Info("discarding stale extraction",
			slog.String("entry_id", entryID),
			slog.Int("started_at_version", extractionVersion),
			slog.Int("current_version", current))
		return Result{HasTemporalContent: hasTemporal, Stale: true}, nil
	}

	if err := p.store.ReplaceEntrySignals(ctx, entryID, signals); err != nil {
		return Result{}, fmt.Errorf("persisting signals for entry %s: %w", entryID, err)
	}
	return Result{Signals: signals, HasTemporalContent: hasTemporal}, nil
}

// Reprocess handles an edited entry: it bumps the extraction version
// (invalidating any in-flight run) and extracts fresh against the new
// text. Prior signals are replaced wholesale, never merged.
func (p *Processor) Reprocess(ctx context.Context, entryID, text string) (Result, error) {
	version, err := p.store.BumpExtractionVersion(ctx, entryID)
	if err != nil {
		return Result{}, fmt.Errorf("bumping extraction version for entry %s: %w", entryID, err)
	}
	return p.Process(ctx, entryID, text, version)
}
