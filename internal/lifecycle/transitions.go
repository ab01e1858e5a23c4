package lifecycle

import "fmt"

// transitionTable maps each state to its legal successors, per entity
// type. A state with no row (or an empty set) is terminal.
var transitionTable = map[EntityType]map[State][]State{
	TypeGoal: {
		StateProposed: {StateActive, StateAbandoned},
		StateActive:   {StateAchieved, StateAbandoned, StatePaused},
		StatePaused:   {StateActive, StateAbandoned},
	},
	TypeInsight: {
		StatePending:  {StateVerified, StateDismissed, StateActioned},
		StateVerified: {StateActioned, StateDismissed},
	},
	TypePattern: {
		StateDetected:  {StateConfirmed, StateRejected},
		StateConfirmed: {StateResolved, StateRejected},
	},
	TypeContradiction: {
		StateDetected:  {StateConfirmed, StateRejected},
		StateConfirmed: {StateResolved, StateRejected},
	},
}

// initialStates by entity type.
var initialStates = map[EntityType]State{
	TypeGoal:          StateProposed,
	TypeInsight:       StatePending,
	TypePattern:       StateDetected,
	TypeContradiction: StateDetected,
}

// InitialState returns the state a freshly promoted entity starts in.
func InitialState(typ EntityType) State {
	return initialStates[typ]
}

// ValidEntityType reports whether typ is one of the known entity types.
func ValidEntityType(typ EntityType) bool {
	_, ok := initialStates[typ]
	return ok
}

// CanTransition reports whether moving from -> to is legal for typ.
func CanTransition(typ EntityType, from, to State) bool {
	for _, s := range transitionTable[typ][from] {
		if s == to {
			return true
		}
	}
	return false
}

// LegalNext returns the set of states reachable from the given state.
// The returned slice is a copy.
func LegalNext(typ EntityType, from State) []State {
	next := transitionTable[typ][from]
	out := make([]State, len(next))
	copy(out, next)
	return out
}

// IsTerminal reports whether a state has no outgoing transitions for
// the given type. Terminal entities are immutable.
func IsTerminal(typ EntityType, s State) bool {
	return len(transitionTable[typ][s]) == 0
}

// InvalidTransitionError reports an attempted move outside the legal
// set. It is surfaced to the caller, never silently coerced.
type InvalidTransitionError struct {
	Type EntityType
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Type, e.From, e.To)
}
