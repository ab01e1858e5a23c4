package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftline-app/driftline/internal/exclusion"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Tx is the transactional view the engine mutates entities through.
// Everything done inside one WithTx call commits or rolls back as a
// unit; the contradiction sweep on goal settlement relies on that.
type Tx interface {
	GetEntity(userID, id string) (*Entity, error)
	PutEntity(e *Entity) error
	ListEntitiesByTopic(userID string, typ EntityType, topic string) ([]*Entity, error)
	PutExclusion(x exclusion.Exclusion) error
}

// Store provides the transactional read-modify-write primitive.
// Implemented by storage.Store.
type Store interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Transition context keys recognized by the engine.
const (
	// CtxReason carries the user's stated reason for a dismissal or
	// rejection.
	CtxReason = "reason"
	// CtxExcludePermanently, when "true" on an insight dismissal,
	// additionally writes a permanent exclusion for the topic.
	CtxExcludePermanently = "exclude_permanently"
)

// Engine validates and applies lifecycle transitions.
type Engine struct {
	store Store
	clock Clock
}

// NewEngine creates an Engine over the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store, clock: realClock{}}
}

// NewEngineWithClock creates an Engine with a custom clock (tests).
func NewEngineWithClock(store Store, clock Clock) *Engine {
	return &Engine{store: store, clock: clock}
}

// Transition moves an entity to a new state. It fails with
// *InvalidTransitionError when the move is outside the legal set and
// with the store's not-found error when the entity does not exist.
// The read, validation, write, and all side effects execute in a
// single transaction, so a concurrent transition cannot interleave.
func (g *Engine) Transition(ctx context.Context, userID, id string, to State, tctx map[string]string) (*Entity, error) {
	var result *Entity
	err := g.store.WithTx(ctx, func(tx Tx) error {
		e, err := tx.GetEntity(userID, id)
		if err != nil {
			return err
		}
		if !CanTransition(e.Type, e.State, to) {
			return &InvalidTransitionError{Type: e.Type, From: e.State, To: to}
		}

		now := g.clock.Now()
		from := e.State
		e.State = to
		e.LastUpdated = now
		e.appendHistory(HistoryEntry{From: from, To: to, At: now, Context: tctx})
		applyFeedback(e, to, tctx)

		if err := g.applySideEffects(tx, e, tctx, now); err != nil {
			return err
		}
		if err := tx.PutEntity(e); err != nil {
			return err
		}
		result = e
		return nil
	})
	if err != nil {
		slog.Debug("lifecycle transition failed",
			"user_id", userID, "entity_id", id, "to", string(to), "error", err)
		return nil, err
	}
	return result, nil
}

// applyFeedback updates the feedback flags implied by the destination
// state.
func applyFeedback(e *Entity, to State, tctx map[string]string) {
	switch to {
	case StateDismissed, StateRejected:
		e.Feedback.Dismissed = true
		e.Feedback.DismissReason = tctx[CtxReason]
	case StateVerified, StateConfirmed:
		e.Feedback.Verified = true
	case StateActioned:
		e.Feedback.ActionTaken = true
	}
}

// applySideEffects runs the cross-entity effects of a transition
// inside the same transaction as the transition itself.
func (g *Engine) applySideEffects(tx Tx, e *Entity, tctx map[string]string, now time.Time) error {
	// Settling a goal resolves every open contradiction on its topic.
	if e.Type == TypeGoal && (e.State == StateAchieved || e.State == StateAbandoned) {
		if err := g.resolveContradictions(tx, e, now); err != nil {
			return err
		}
	}

	// Permanently dismissing an insight suppresses its topic for good.
	if e.Type == TypeInsight && e.State == StateDismissed && tctx[CtxExcludePermanently] == "true" {
		e.Exclusions.FromInsights = true
		x := exclusion.New(e.UserID, "insight", map[string]string{"topic": e.Topic}, tctx[CtxReason], true, now)
		if err := tx.PutExclusion(x); err != nil {
			return err
		}
	}

	return nil
}

func (g *Engine) resolveContradictions(tx Tx, goal *Entity, now time.Time) error {
	open, err := tx.ListEntitiesByTopic(goal.UserID, TypeContradiction, goal.Topic)
	if err != nil {
		return err
	}
	for _, c := range open {
		if c.State != StateDetected && c.State != StateConfirmed {
			continue
		}
		// A detected contradiction has no direct edge to resolved;
		// walk it through confirmed first so history stays legal.
		if c.State == StateDetected {
			c.appendHistory(HistoryEntry{From: StateDetected, To: StateConfirmed, At: now,
				Context: map[string]string{"resolved_by": goal.ID}})
			c.State = StateConfirmed
		}
		c.appendHistory(HistoryEntry{From: c.State, To: StateResolved, At: now,
			Context: map[string]string{"resolved_by": goal.ID}})
		c.State = StateResolved
		c.LastUpdated = now
		if err := tx.PutEntity(c); err != nil {
			return err
		}
	}
	return nil
}

// Promote creates or augments the entity for (type, topic). An
// existing non-terminal entity gains the entry as a source; a terminal
// or missing one is replaced by a fresh entity in the initial state.
func (g *Engine) Promote(ctx context.Context, userID string, typ EntityType, topic, entryID string, metadata map[string]string) (*Entity, error) {
	var result *Entity
	err := g.store.WithTx(ctx, func(tx Tx) error {
		now := g.clock.Now()
		existing, err := tx.ListEntitiesByTopic(userID, typ, topic)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if IsTerminal(e.Type, e.State) {
				continue
			}
			e.AddSourceEntry(entryID)
			e.LastUpdated = now
			if err := tx.PutEntity(e); err != nil {
				return err
			}
			result = e
			return nil
		}

		e := New(userID, typ, topic, entryID, now)
		e.Metadata = metadata
		if err := tx.PutEntity(e); err != nil {
			return err
		}
		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
