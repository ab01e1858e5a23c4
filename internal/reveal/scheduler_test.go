package reveal

import (
	"context"
	"fmt"
	"testing"
	"time"
)

type fakeStore struct {
	updated  []Insight
	revealed []string
	err      error
}

func (f *fakeStore) UpdateInsightSchedules(_ context.Context, insights []Insight) error {
	if f.err != nil {
		return f.err
	}
	f.updated = append(f.updated, insights...)
	return nil
}

func (f *fakeStore) MarkInsightRevealed(_ context.Context, _, insightID string) error {
	if f.err != nil {
		return f.err
	}
	f.revealed = append(f.revealed, insightID)
	return nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func batch(n int) []Insight {
	out := make([]Insight, n)
	for i := range out {
		out[i] = Insight{
			ID:         fmt.Sprintf("ins-%02d", i),
			UserID:     "u1",
			Confidence: 0.9 - float64(i)*0.01,
		}
	}
	return out
}

func TestAssignRevealDates_SpreadsAcrossDays(t *testing.T) {
	now := time.Date(2026, 3, 11, 14, 30, 0, 0, time.Local)
	s := NewSchedulerWithClock(&fakeStore{}, fixedClock{now})

	out := s.AssignRevealDates(batch(15), now)
	if len(out) != 15 {
		t.Fatalf("expected 15 insights, got %d", len(out))
	}

	perDay := map[string]int{}
	for _, i := range out {
		if !i.IsBackfilled {
			t.Errorf("%s not marked backfilled", i.ID)
		}
		if !i.BackfilledAt.Equal(now) {
			t.Errorf("%s BackfilledAt = %v", i.ID, i.BackfilledAt)
		}
		if h := i.ScheduledRevealDate.Hour(); h != 8 {
			t.Errorf("%s scheduled at hour %d, want 8", i.ID, h)
		}
		perDay[i.ScheduledRevealDate.Format("2006-01-02")]++
	}

	want := map[string]int{"2026-03-11": 7, "2026-03-12": 7, "2026-03-13": 1}
	for day, n := range want {
		if perDay[day] != n {
			t.Errorf("day %s: got %d insights, want %d", day, perDay[day], n)
		}
	}
}

func TestAssignRevealDates_HighConfidenceFirst(t *testing.T) {
	now := time.Date(2026, 3, 11, 14, 30, 0, 0, time.Local)
	s := NewSchedulerWithClock(&fakeStore{}, fixedClock{now})

	in := []Insight{
		{ID: "low", Confidence: 0.5},
		{ID: "high", Confidence: 0.95},
	}
	// Pad so the lower-confidence one falls onto day two.
	for i := 0; i < 6; i++ {
		in = append(in, Insight{ID: fmt.Sprintf("mid-%d", i), Confidence: 0.7})
	}

	out := s.AssignRevealDates(in, now)
	byID := map[string]Insight{}
	for _, i := range out {
		byID[i.ID] = i
	}
	if d := byID["high"].ScheduledRevealDate.Day(); d != 11 {
		t.Errorf("high-confidence insight scheduled day %d, want 11", d)
	}
	if d := byID["low"].ScheduledRevealDate.Day(); d != 12 {
		t.Errorf("low-confidence insight scheduled day %d, want 12", d)
	}
}

func TestIsVisible(t *testing.T) {
	sched := time.Date(2026, 3, 12, 8, 0, 0, 0, time.Local)
	cases := []struct {
		name string
		ins  Insight
		now  time.Time
		want bool
	}{
		{"not backfilled", Insight{IsBackfilled: false}, sched.AddDate(0, 0, -5), true},
		{"no scheduled date", Insight{IsBackfilled: true}, sched.AddDate(0, 0, -5), true},
		{"before reveal", Insight{IsBackfilled: true, ScheduledRevealDate: sched}, sched.Add(-time.Minute), false},
		{"at reveal", Insight{IsBackfilled: true, ScheduledRevealDate: sched}, sched, true},
		{"after reveal", Insight{IsBackfilled: true, ScheduledRevealDate: sched}, sched.Add(time.Hour), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsVisible(tc.ins, tc.now); got != tc.want {
				t.Errorf("IsVisible = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGetInsightCounts_AdvancesWithClock(t *testing.T) {
	now := time.Date(2026, 3, 11, 14, 30, 0, 0, time.Local)
	s := NewSchedulerWithClock(&fakeStore{}, fixedClock{now})
	out := s.AssignRevealDates(batch(15), now)

	c := GetInsightCounts(out, now)
	if c.Visible != 7 || c.Pending != 8 {
		t.Fatalf("day 0: visible=%d pending=%d, want 7/8", c.Visible, c.Pending)
	}

	c = GetInsightCounts(out, now.AddDate(0, 0, 1))
	if c.Visible != 14 || c.Pending != 1 {
		t.Fatalf("day 1: visible=%d pending=%d, want 14/1", c.Visible, c.Pending)
	}

	c = GetInsightCounts(out, now.AddDate(0, 0, 2))
	if c.Visible != 15 || c.Pending != 0 {
		t.Fatalf("day 2: visible=%d pending=%d, want 15/0", c.Visible, c.Pending)
	}
}

func TestSchedule_PersistsBatch(t *testing.T) {
	now := time.Date(2026, 3, 11, 14, 30, 0, 0, time.Local)
	st := &fakeStore{}
	s := NewSchedulerWithClock(st, fixedClock{now})

	out, err := s.Schedule(context.Background(), batch(3))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if len(out) != 3 || len(st.updated) != 3 {
		t.Fatalf("expected 3 scheduled and persisted, got %d/%d", len(out), len(st.updated))
	}

	out, err = s.Schedule(context.Background(), nil)
	if err != nil || out != nil {
		t.Fatalf("empty batch: got %v, %v", out, err)
	}
}

func TestMarkRevealed(t *testing.T) {
	st := &fakeStore{}
	s := NewScheduler(st)
	if err := s.MarkRevealed(context.Background(), "u1", "ins-01"); err != nil {
		t.Fatalf("MarkRevealed: %v", err)
	}
	if len(st.revealed) != 1 || st.revealed[0] != "ins-01" {
		t.Fatalf("revealed = %v", st.revealed)
	}
}
