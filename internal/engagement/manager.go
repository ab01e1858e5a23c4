// Package engagement tracks how the user responds to gap prompts:
// which styles they accept and which domains they have snoozed.
package engagement

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Preferences is the per-user engagement state read by style selection
// and snooze filtering.
type Preferences struct {
	// StyleAcceptance counts accepted prompts per style name.
	StyleAcceptance map[string]int
	// SnoozeUntil maps a domain to the instant its snooze lifts.
	SnoozeUntil map[string]time.Time
}

// Store defines the persistence operations the Manager needs.
// Implemented by storage.Store.
type Store interface {
	GetEngagementPrefs(ctx context.Context, userID string) (Preferences, error)
	SetEngagementPrefs(ctx context.Context, userID string, p Preferences) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// DefaultSnooze is how long a snoozed domain stays quiet.
const DefaultSnooze = 7 * 24 * time.Hour

// Manager provides cached access to engagement preferences.
type Manager struct {
	store Store
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   map[string]Preferences
	cachedAt map[string]time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store Store) *Manager {
	return NewManagerWithClock(store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (tests).
func NewManagerWithClock(store Store, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store:    store,
		clock:    clock,
		ttl:      ttl,
		cached:   make(map[string]Preferences),
		cachedAt: make(map[string]time.Time),
	}
}

// Get returns the user's preferences, from cache when fresh. Callers
// treat an error as "no preferences yet" (style selection falls back
// to uniform exploration); the error is still returned so they can
// log it.
func (m *Manager) Get(ctx context.Context, userID string) (Preferences, error) {
	m.mu.RLock()
	if at, ok := m.cachedAt[userID]; ok && m.clock.Now().Before(at.Add(m.ttl)) {
		p := deepCopy(m.cached[userID])
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if at, ok := m.cachedAt[userID]; ok && m.clock.Now().Before(at.Add(m.ttl)) {
		return deepCopy(m.cached[userID]), nil
	}

	p, err := m.store.GetEngagementPrefs(ctx, userID)
	if err != nil {
		return Preferences{}, fmt.Errorf("loading engagement preferences: %w", err)
	}
	m.cached[userID] = deepCopy(p)
	m.cachedAt[userID] = m.clock.Now()
	return p, nil
}

// TrackEngagement records the user's reaction to a prompt: accepted
// prompts bump the style's acceptance count, and the cache is
// invalidated so the next read sees the update.
func (m *Manager) TrackEngagement(ctx context.Context, userID, style string, accepted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.store.GetEngagementPrefs(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading engagement preferences: %w", err)
	}
	if accepted {
		if p.StyleAcceptance == nil {
			p.StyleAcceptance = make(map[string]int)
		}
		p.StyleAcceptance[style]++
	}
	if err := m.store.SetEngagementPrefs(ctx, userID, p); err != nil {
		return fmt.Errorf("saving engagement preferences: %w", err)
	}
	delete(m.cachedAt, userID)
	return nil
}

// SnoozeDomain quiets a domain's prompts for DefaultSnooze.
func (m *Manager) SnoozeDomain(ctx context.Context, userID, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.store.GetEngagementPrefs(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading engagement preferences: %w", err)
	}
	if p.SnoozeUntil == nil {
		p.SnoozeUntil = make(map[string]time.Time)
	}
	p.SnoozeUntil[domain] = m.clock.Now().Add(DefaultSnooze)
	if err := m.store.SetEngagementPrefs(ctx, userID, p); err != nil {
		return fmt.Errorf("saving engagement preferences: %w", err)
	}
	delete(m.cachedAt, userID)
	return nil
}

func deepCopy(p Preferences) Preferences {
	cp := Preferences{}
	if p.StyleAcceptance != nil {
		cp.StyleAcceptance = make(map[string]int, len(p.StyleAcceptance))
		for k, v := range p.StyleAcceptance {
			cp.StyleAcceptance[k] = v
		}
	}
	if p.SnoozeUntil != nil {
		cp.SnoozeUntil = make(map[string]time.Time, len(p.SnoozeUntil))
		for k, v := range p.SnoozeUntil {
			cp.SnoozeUntil[k] = v
		}
	}
	return cp
}
