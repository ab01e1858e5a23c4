package temporal

import (
	"testing"
	"time"
)

func TestResolveTargetDay_Vocabulary(t *testing.T) {
	// Wednesday, 2026-03-11.
	now := time.Date(2026, 3, 11, 22, 30, 0, 0, time.Local)

	cases := []struct {
		token string
		want  time.Time
	}{
		{"today", time.Date(2026, 3, 11, 12, 0, 0, 0, time.Local)},
		{"tonight", time.Date(2026, 3, 11, 12, 0, 0, 0, time.Local)},
		{"tomorrow", time.Date(2026, 3, 12, 12, 0, 0, 0, time.Local)},
		{"day_after_tomorrow", time.Date(2026, 3, 13, 12, 0, 0, 0, time.Local)},
		{"yesterday", time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)},
		{"friday", time.Date(2026, 3, 13, 12, 0, 0, 0, time.Local)},
		{"this_friday", time.Date(2026, 3, 13, 12, 0, 0, 0, time.Local)},
		{"next_friday", time.Date(2026, 3, 20, 12, 0, 0, 0, time.Local)},
		{"next_monday", time.Date(2026, 3, 23, 12, 0, 0, 0, time.Local)},
		{"this_weekend", time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)},
		{"next_week", time.Date(2026, 3, 18, 12, 0, 0, 0, time.Local)},
		{"next_month", time.Date(2026, 4, 11, 12, 0, 0, 0, time.Local)},
		{"march_20", time.Date(2026, 3, 20, 12, 0, 0, 0, time.Local)},
		// Already passed this year: resolves to next year.
		{"january_5", time.Date(2027, 1, 5, 12, 0, 0, 0, time.Local)},
	}
	for _, tc := range cases {
		got, ok := ResolveTargetDay(tc.token, now)
		if !ok {
			t.Errorf("ResolveTargetDay(%q) not ok", tc.token)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ResolveTargetDay(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
}

func TestResolveTargetDay_FixedHour(t *testing.T) {
	// The resolved hour must not depend on the time of day the entry
	// was written.
	morning := time.Date(2026, 3, 11, 6, 15, 0, 0, time.Local)
	night := time.Date(2026, 3, 11, 23, 45, 0, 0, time.Local)

	a, _ := ResolveTargetDay("tomorrow", morning)
	b, _ := ResolveTargetDay("tomorrow", night)
	if !a.Equal(b) {
		t.Errorf("tomorrow differs by reference hour: %v vs %v", a, b)
	}
	if a.Hour() != resolvedHour {
		t.Errorf("Hour = %d, want %d", a.Hour(), resolvedHour)
	}
}

func TestResolveTargetDay_NextWeekdayStrict(t *testing.T) {
	// Saturday reference: "next_monday" must skip the Monday two days
	// away and land at least 6 days out.
	sat := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	got, ok := ResolveTargetDay("next_monday", sat)
	if !ok {
		t.Fatal("next_monday not resolved")
	}
	want := time.Date(2026, 3, 23, 12, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("next_monday from Saturday = %v, want %v", got, want)
	}
}

func TestResolveTargetDay_WeekendDuringWeekend(t *testing.T) {
	sun := time.Date(2026, 3, 15, 9, 0, 0, 0, time.Local)
	got, ok := ResolveTargetDay("this_weekend", sun)
	if !ok {
		t.Fatal("this_weekend not resolved")
	}
	if got.Day() != 15 {
		t.Errorf("this_weekend on a Sunday = %v, want same day", got)
	}
}

func TestResolveTargetDay_Unresolvable(t *testing.T) {
	for _, token := range []string{"", "someday", "next_blursday", "february_30", "march_0"} {
		if _, ok := ResolveTargetDay(token, ref); ok {
			t.Errorf("ResolveTargetDay(%q) ok, want unresolvable", token)
		}
	}
}
