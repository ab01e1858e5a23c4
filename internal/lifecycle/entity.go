// Package lifecycle tracks durable journal entities (goals, insights,
// patterns, contradictions) through their finite state machines.
package lifecycle

import (
	"time"

	"github.com/google/uuid"
)

// EntityType identifies which state machine an entity follows.
type EntityType string

const (
	TypeGoal          EntityType = "goal"
	TypeInsight       EntityType = "insight"
	TypePattern       EntityType = "pattern"
	TypeContradiction EntityType = "contradiction"
)

// State is a lifecycle state. The legal values depend on EntityType;
// see the transition tables in transitions.go.
type State string

const (
	// Goal states.
	StateProposed  State = "proposed"
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateAchieved  State = "achieved"
	StateAbandoned State = "abandoned"

	// Insight states.
	StatePending  State = "pending"
	StateVerified State = "verified"
	StateActioned State = "actioned"

	// Shared by insights (dismissed) and patterns/contradictions.
	StateDismissed State = "dismissed"
	StateDetected  State = "detected"
	StateConfirmed State = "confirmed"
	StateRejected  State = "rejected"
	StateResolved  State = "resolved"
)

// HistoryEntry records one validated transition.
type HistoryEntry struct {
	From    State             `json:"from"`
	To      State             `json:"to"`
	At      time.Time         `json:"at"`
	Context map[string]string `json:"context,omitempty"`
}

// Feedback holds the user's explicit reactions to an entity.
type Feedback struct {
	Verified      bool   `json:"verified,omitempty"`
	Dismissed     bool   `json:"dismissed,omitempty"`
	DismissReason string `json:"dismiss_reason,omitempty"`
	ActionTaken   bool   `json:"action_taken,omitempty"`
}

// DetectorExclusions gates whether this entity may feed each of the
// downstream detectors.
type DetectorExclusions struct {
	FromContradictions bool `json:"from_contradictions,omitempty"`
	FromInsights       bool `json:"from_insights,omitempty"`
	FromPatterns       bool `json:"from_patterns,omitempty"`
}

// Entity is a promoted, stateful signal. Topic is the stable dedup
// key: one live entity per (type, topic) per user.
type Entity struct {
	ID            string
	UserID        string
	Type          EntityType
	Topic         string
	State         State
	StateHistory  []HistoryEntry
	SourceEntries []string
	Metadata      map[string]string
	Exclusions    DetectorExclusions
	Feedback      Feedback
	CreatedAt     time.Time
	LastUpdated   time.Time
}

// maxHistoryEntries caps StateHistory. On overflow the first entry is
// kept as provenance and the newest entries fill the rest.
const maxHistoryEntries = 20

// New creates an entity in the initial state for its type, with a
// creation record as the first history entry.
func New(userID string, typ EntityType, topic string, sourceEntry string, now time.Time) *Entity {
	initial := InitialState(typ)
	e := &Entity{
		ID:     uuid.New().String(),
		UserID: userID,
		Type:   typ,
		Topic:  topic,
		State:  initial,
		StateHistory: []HistoryEntry{{
			From: "",
			To:   initial,
			At:   now,
		}},
		CreatedAt:   now,
		LastUpdated: now,
	}
	if sourceEntry != "" {
		e.SourceEntries = []string{sourceEntry}
	}
	return e
}

// AddSourceEntry records an entry id as a contributor, once.
func (e *Entity) AddSourceEntry(entryID string) {
	for _, id := range e.SourceEntries {
		if id == entryID {
			return
		}
	}
	e.SourceEntries = append(e.SourceEntries, entryID)
}

// appendHistory appends h, enforcing the cap: the creation record at
// index 0 is never dropped, the oldest non-creation entries are.
func (e *Entity) appendHistory(h HistoryEntry) {
	e.StateHistory = append(e.StateHistory, h)
	if len(e.StateHistory) <= maxHistoryEntries {
		return
	}
	capped := make([]HistoryEntry, 0, maxHistoryEntries)
	capped = append(capped, e.StateHistory[0])
	capped = append(capped, e.StateHistory[len(e.StateHistory)-(maxHistoryEntries-1):]...)
	e.StateHistory = capped
}
