// Package exclusion keeps the user's suppression list: pattern
// type/context pairs the downstream detectors must skip, either for
// 30 days or permanently.
package exclusion

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a non-permanent exclusion stays active.
const DefaultTTL = 30 * 24 * time.Hour

// Exclusion is one suppression record. Records are never mutated;
// renewing a suppression writes a new record.
type Exclusion struct {
	ID          string
	UserID      string
	PatternType string
	Context     map[string]string
	Reason      string
	Permanent   bool
	ExcludedAt  time.Time
	ExpiresAt   time.Time // zero for permanent exclusions
}

// New builds an exclusion record. Non-permanent records expire
// DefaultTTL after creation.
func New(userID, patternType string, context map[string]string, reason string, permanent bool, now time.Time) Exclusion {
	x := Exclusion{
		ID:          uuid.New().String(),
		UserID:      userID,
		PatternType: patternType,
		Context:     context,
		Reason:      reason,
		Permanent:   permanent,
		ExcludedAt:  now,
	}
	if !permanent {
		x.ExpiresAt = now.Add(DefaultTTL)
	}
	return x
}

// Active reports whether the exclusion is still in force at now.
func (x Exclusion) Active(now time.Time) bool {
	return x.Permanent || now.Before(x.ExpiresAt)
}

// Matches reports whether the exclusion's context predicate covers the
// candidate context: every stored key/value must be present in the
// candidate. An empty stored context matches everything of the same
// pattern type.
func (x Exclusion) Matches(patternType string, candidate map[string]string) bool {
	if x.PatternType != patternType {
		return false
	}
	for k, v := range x.Context {
		if candidate[k] != v {
			return false
		}
	}
	return true
}

// Store is the persistence the registry needs. Implemented by
// storage.Store.
type Store interface {
	SaveExclusion(ctx context.Context, x Exclusion) error
	ListExclusions(ctx context.Context, userID, patternType string) ([]Exclusion, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Registry answers "is this suppressed?" for the detectors.
type Registry struct {
	store Store
	clock Clock
}

// NewRegistry creates a Registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, clock: realClock{}}
}

// NewRegistryWithClock creates a Registry with a custom clock (tests).
func NewRegistryWithClock(store Store, clock Clock) *Registry {
	return &Registry{store: store, clock: clock}
}

// Add records a new suppression.
func (r *Registry) Add(ctx context.Context, userID, patternType string, context map[string]string, reason string, permanent bool) (Exclusion, error) {
	x := New(userID, patternType, context, reason, permanent, r.clock.Now())
	if err := r.store.SaveExclusion(ctx, x); err != nil {
		return Exclusion{}, err
	}
	return x, nil
}

// IsExcluded reports whether any active exclusion covers the given
// pattern type and context. Errors are returned to the caller, which
// decides the fail-open/fail-closed policy.
func (r *Registry) IsExcluded(ctx context.Context, userID, patternType string, candidate map[string]string) (bool, error) {
	records, err := r.store.ListExclusions(ctx, userID, patternType)
	if err != nil {
		return false, err
	}
	now := r.clock.Now()
	for _, x := range records {
		if x.Active(now) && x.Matches(patternType, candidate) {
			return true, nil
		}
	}
	return false, nil
}
