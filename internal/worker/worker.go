// Package worker processes extraction jobs from the SQLite job queue,
// keeping the slow comprehension calls off the request path.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driftline-app/driftline/internal/signal"
	"github.com/driftline-app/driftline/internal/storage"
)

// JobTypeExtractSignals is the queue type for per-entry extraction.
const JobTypeExtractSignals = "extract_signals"

// JobStore abstracts the job queue and entry lookups.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
	GetEntry(ctx context.Context, id string) (storage.Entry, error)
}

// EntryProcessor runs extraction for one entry. Implemented by
// signal.Processor.
type EntryProcessor interface {
	Process(ctx context.Context, entryID, text string, extractionVersion int) (signal.Result, error)
}

// Worker processes extract_signals jobs from the SQLite job queue.
type Worker struct {
	store     JobStore
	processor EntryProcessor
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, processor EntryProcessor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		processor: processor,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single extract_signals job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{JobTypeExtractSignals})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type extractPayload struct {
	EntryID           string `json:"entry_id"`
	ExtractionVersion int    `json:"extraction_version"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload extractPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	entry, err := w.store.GetEntry(ctx, payload.EntryID)
	if err != nil {
		return fmt.Errorf("loading entry %s: %w", payload.EntryID, err)
	}

	res, err := w.processor.Process(ctx, entry.ID, entry.Content, payload.ExtractionVersion)
	if err != nil {
		return fmt.Errorf("processing entry %s: %w", entry.ID, err)
	}

	// A stale result means the entry was edited after this job was
	// enqueued; a newer job carries the fresh version, so this one is
	// simply done.
	if res.Stale {
		w.logger.Info("extraction superseded by newer entry version",
			"entry_id", entry.ID, "job_id", job.ID)
		return nil
	}

	w.logger.Debug("entry processed",
		"entry_id", entry.ID,
		"signals", len(res.Signals),
		"has_temporal", res.HasTemporalContent)
	return nil
}

// JobQueue is the enqueue side of the queue.
type JobQueue interface {
	EnqueueJob(ctx context.Context, job storage.Job) error
}

// EnqueueExtraction queues an extraction job for the entry at the
// given version.
func EnqueueExtraction(ctx context.Context, q JobQueue, entryID string, extractionVersion int) error {
	payload, err := json.Marshal(extractPayload{EntryID: entryID, ExtractionVersion: extractionVersion})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	return q.EnqueueJob(ctx, storage.Job{
		ID:          uuid.New().String(),
		Type:        JobTypeExtractSignals,
		PayloadJSON: string(payload),
	})
}
