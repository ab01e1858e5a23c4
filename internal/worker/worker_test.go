package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/driftline-app/driftline/internal/signal"
	"github.com/driftline-app/driftline/internal/storage"
)

type fakeJobStore struct {
	jobs      []*storage.Job
	entries   map[string]storage.Entry
	completed []string
	failed    map[string]string
	claimErr  error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{
		entries: make(map[string]storage.Entry),
		failed:  make(map[string]string),
	}
}

func (f *fakeJobStore) ClaimNextJob(_ context.Context, types []string) (*storage.Job, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.jobs) == 0 {
		return nil, nil
	}
	j := f.jobs[0]
	f.jobs = f.jobs[1:]
	j.Status = "running"
	return j, nil
}

func (f *fakeJobStore) CompleteJob(_ context.Context, id string) error {
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeJobStore) FailJob(_ context.Context, id string, errMsg string) error {
	f.failed[id] = errMsg
	return nil
}

func (f *fakeJobStore) GetEntry(_ context.Context, id string) (storage.Entry, error) {
	e, ok := f.entries[id]
	if !ok {
		return storage.Entry{}, storage.ErrNotFound
	}
	return e, nil
}

func (f *fakeJobStore) EnqueueJob(_ context.Context, job storage.Job) error {
	f.jobs = append(f.jobs, &job)
	return nil
}

type fakeProcessor struct {
	result    signal.Result
	err       error
	processed []string
}

func (f *fakeProcessor) Process(_ context.Context, entryID, _ string, _ int) (signal.Result, error) {
	f.processed = append(f.processed, entryID)
	return f.result, f.err
}

func extractJob(entryID string, version int) *storage.Job {
	payload, _ := json.Marshal(extractPayload{EntryID: entryID, ExtractionVersion: version})
	return &storage.Job{ID: "job-" + entryID, Type: JobTypeExtractSignals, PayloadJSON: string(payload)}
}

func TestRunOnce_NoJob(t *testing.T) {
	w := NewWorker(newFakeJobStore(), &fakeProcessor{}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("RunOnce reported work with an empty queue")
	}
}

func TestRunOnce_ProcessesJob(t *testing.T) {
	st := newFakeJobStore()
	st.entries["e1"] = storage.Entry{ID: "e1", Content: "dentist tomorrow", ExtractionVersion: 1}
	st.jobs = append(st.jobs, extractJob("e1", 1))
	proc := &fakeProcessor{result: signal.Result{HasTemporalContent: true}}
	w := NewWorker(st, proc, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("expected a processed job")
	}
	if len(proc.processed) != 1 || proc.processed[0] != "e1" {
		t.Errorf("processed = %v", proc.processed)
	}
	if len(st.completed) != 1 || st.completed[0] != "job-e1" {
		t.Errorf("completed = %v", st.completed)
	}
}

func TestRunOnce_StaleResultCompletes(t *testing.T) {
	st := newFakeJobStore()
	st.entries["e1"] = storage.Entry{ID: "e1", Content: "edited text", ExtractionVersion: 2}
	st.jobs = append(st.jobs, extractJob("e1", 1))
	w := NewWorker(st, &fakeProcessor{result: signal.Result{Stale: true}}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil || !done {
		t.Fatalf("RunOnce = %v, %v", done, err)
	}
	// Stale is not a failure: the newer job owns the entry now.
	if len(st.failed) != 0 {
		t.Errorf("stale job marked failed: %v", st.failed)
	}
	if len(st.completed) != 1 {
		t.Errorf("completed = %v", st.completed)
	}
}

func TestRunOnce_ProcessorErrorFailsJob(t *testing.T) {
	st := newFakeJobStore()
	st.entries["e1"] = storage.Entry{ID: "e1", Content: "text"}
	st.jobs = append(st.jobs, extractJob("e1", 1))
	w := NewWorker(st, &fakeProcessor{err: errors.New("ollama unavailable")}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil || !done {
		t.Fatalf("RunOnce = %v, %v", done, err)
	}
	if msg, ok := st.failed["job-e1"]; !ok || msg == "" {
		t.Errorf("failed = %v", st.failed)
	}
	if len(st.completed) != 0 {
		t.Errorf("failed job also completed: %v", st.completed)
	}
}

func TestRunOnce_MalformedPayloadFailsJob(t *testing.T) {
	st := newFakeJobStore()
	st.jobs = append(st.jobs, &storage.Job{ID: "j1", Type: JobTypeExtractSignals, PayloadJSON: "{{{"})
	w := NewWorker(st, &fakeProcessor{}, 0)

	done, err := w.RunOnce(context.Background())
	if err != nil || !done {
		t.Fatalf("RunOnce = %v, %v", done, err)
	}
	if _, ok := st.failed["j1"]; !ok {
		t.Error("malformed payload not marked failed")
	}
}

func TestEnqueueExtraction(t *testing.T) {
	st := newFakeJobStore()
	if err := EnqueueExtraction(context.Background(), st, "e1", 3); err != nil {
		t.Fatalf("EnqueueExtraction: %v", err)
	}
	if len(st.jobs) != 1 {
		t.Fatalf("jobs = %d", len(st.jobs))
	}
	j := st.jobs[0]
	if j.Type != JobTypeExtractSignals {
		t.Errorf("type = %q", j.Type)
	}
	var p extractPayload
	if err := json.Unmarshal([]byte(j.PayloadJSON), &p); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if p.EntryID != "e1" || p.ExtractionVersion != 3 {
		t.Errorf("payload = %+v", p)
	}
}

type fakeReprocessor struct {
	mu       sync.Mutex
	seen     []string
	inFlight int
	peak     int
	err      error
}

func (f *fakeReprocessor) Reprocess(_ context.Context, entryID, _ string) (signal.Result, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.seen = append(f.seen, entryID)
	err := f.err
	f.mu.Unlock()

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if err != nil {
		return signal.Result{}, err
	}
	return signal.Result{}, nil
}

func TestBackfill_ProcessesAllEntries(t *testing.T) {
	entries := []storage.Entry{
		{ID: "e1", Content: "a"}, {ID: "e2", Content: "b"}, {ID: "e3", Content: "c"},
		{ID: "e4", Content: "d"}, {ID: "e5", Content: "e"},
	}
	proc := &fakeReprocessor{}
	if err := Backfill(context.Background(), proc, entries, 2); err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if len(proc.seen) != 5 {
		t.Errorf("reprocessed %d entries, want 5", len(proc.seen))
	}
}

func TestBackfill_PropagatesError(t *testing.T) {
	entries := []storage.Entry{{ID: "e1", Content: "a"}}
	proc := &fakeReprocessor{err: errors.New("db closed")}
	if err := Backfill(context.Background(), proc, entries, 2); err == nil {
		t.Fatal("expected error")
	}
}
