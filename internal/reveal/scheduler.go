// Package reveal drip-feeds bulk-generated insights so a backfill run
// does not dump weeks of material on the user in one morning.
package reveal

import (
	"context"
	"sort"
	"time"
)

const (
	// DailyQuota is the maximum number of backfilled insights revealed
	// per day.
	DailyQuota = 7
	// revealHour is the local hour reveals unlock at.
	revealHour = 8
)

// Insight is a generated insight with the scheduling fields this
// package owns. The insight text itself comes from elsewhere.
type Insight struct {
	ID                  string
	UserID              string
	Content             string
	Confidence          float64
	IsBackfilled        bool
	BackfilledAt        time.Time
	ScheduledRevealDate time.Time
	Revealed            bool
	CreatedAt           time.Time
}

// Store persists schedule assignments and reveal marks. Implemented
// by storage.Store. Batch updates commit as one unit.
type Store interface {
	UpdateInsightSchedules(ctx context.Context, insights []Insight) error
	MarkInsightRevealed(ctx context.Context, userID, insightID string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Scheduler assigns reveal dates and answers visibility queries.
type Scheduler struct {
	store Store
	clock Clock
}

// NewScheduler creates a Scheduler over the given store.
func NewScheduler(store Store) *Scheduler {
	return &Scheduler{store: store, clock: realClock{}}
}

// NewSchedulerWithClock creates a Scheduler with a custom clock (tests).
func NewSchedulerWithClock(store Store, clock Clock) *Scheduler {
	return &Scheduler{store: store, clock: clock}
}

// AssignRevealDates marks a freshly generated batch as backfilled and
// spreads it across days: the insights are ranked by descending
// confidence, and rank r unlocks r/DailyQuota days from now at the
// reveal hour. The assignment is returned and is not persisted;
// callers use Schedule for that.
func (s *Scheduler) AssignRevealDates(insights []Insight, now time.Time) []Insight {
	out := make([]Insight, len(insights))
	copy(out, insights)

	// Stable sort so equal-confidence insights keep their input order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})

	for i := range out {
		dayOffset := i / DailyQuota
		d := now.AddDate(0, 0, dayOffset)
		out[i].IsBackfilled = true
		out[i].BackfilledAt = now
		out[i].ScheduledRevealDate = time.Date(d.Year(), d.Month(), d.Day(), revealHour, 0, 0, 0, d.Location())
		out[i].Revealed = false
	}
	return out
}

// Schedule assigns reveal dates to the batch and commits the whole
// assignment as a single multi-write.
func (s *Scheduler) Schedule(ctx context.Context, insights []Insight) ([]Insight, error) {
	if len(insights) == 0 {
		return nil, nil
	}
	scheduled := s.AssignRevealDates(insights, s.clock.Now())
	if err := s.store.UpdateInsightSchedules(ctx, scheduled); err != nil {
		return nil, err
	}
	return scheduled, nil
}

// IsVisible reports whether an insight may be shown at now. Insights
// that were never backfilled, or carry no scheduled date, are always
// visible.
func IsVisible(i Insight, now time.Time) bool {
	if !i.IsBackfilled || i.ScheduledRevealDate.IsZero() {
		return true
	}
	return !now.Before(i.ScheduledRevealDate)
}

// Counts summarizes a set of insights against now.
type Counts struct {
	Visible int
	Pending int
}

// GetInsightCounts reports how many of the insights are visible now
// and how many are still waiting on their reveal date.
func GetInsightCounts(insights []Insight, now time.Time) Counts {
	var c Counts
	for _, i := range insights {
		if IsVisible(i, now) {
			c.Visible++
		} else {
			c.Pending++
		}
	}
	return c
}

// MarkRevealed records that the user viewed an insight. This is the
// only mutation that flips Revealed; visibility alone never does.
func (s *Scheduler) MarkRevealed(ctx context.Context, userID, insightID string) error {
	return s.store.MarkInsightRevealed(ctx, userID, insightID)
}
