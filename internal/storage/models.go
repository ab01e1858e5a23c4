package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Entry is a persisted journal entry. Domains are caller-supplied
// life-domain tags; the safety columns are set by the entry intake
// path and read by the gap safety gates.
type Entry struct {
	ID               string
	UserID           string
	Content          string
	Domains          []string
	SafetyFlagged    bool
	WarningIndicator bool
	// ExtractionVersion increments on every edit; in-flight
	// extractions started under an older version are discarded.
	ExtractionVersion int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
