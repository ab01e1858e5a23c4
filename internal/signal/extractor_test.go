package signal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeComprehender struct {
	proposals []Proposal
	err       error
	calls     int
}

func (f *fakeComprehender) ProposeSignals(_ context.Context, _ string, _ time.Time) ([]Proposal, error) {
	f.calls++
	return f.proposals, f.err
}

var wednesday = time.Date(2026, 3, 11, 10, 0, 0, 0, time.Local)

func TestShouldExtract(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"dentist appointment tomorrow at 3pm", true},
		{"I'm dreading the review", true},
		{"so excited about the trip", true},
		{"had pasta for lunch", false},
	}
	for _, tc := range cases {
		if got := ShouldExtract(tc.text); got != tc.want {
			t.Errorf("ShouldExtract(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestExtract_PreScreenSkipsComprehension(t *testing.T) {
	comp := &fakeComprehender{}
	e := NewExtractor(comp, nil)

	signals, hasTemporal, err := e.Extract(context.Background(), "had pasta for lunch", wednesday)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if signals != nil || hasTemporal {
		t.Fatalf("expected nothing, got %v (temporal=%v)", signals, hasTemporal)
	}
	if comp.calls != 0 {
		t.Fatalf("comprehension called %d times for screened-out text", comp.calls)
	}
}

func TestExtract_ValidProposal(t *testing.T) {
	comp := &fakeComprehender{proposals: []Proposal{{
		Type:           "plan",
		Content:        "dentist visit",
		TargetDay:      "tomorrow",
		Sentiment:      "anxious",
		OriginalPhrase: "dentist appointment tomorrow",
		Confidence:     0.85,
	}}}
	e := NewExtractor(comp, nil)

	signals, hasTemporal, err := e.Extract(context.Background(), "dentist appointment tomorrow", wednesday)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !hasTemporal {
		t.Error("expected temporal content")
	}
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	s := signals[0]
	if s.Kind != KindPlan || s.Sentiment != SentimentAnxious {
		t.Errorf("unexpected signal: %+v", s)
	}
	if s.TargetDate.Day() != 12 || s.TargetDate.Month() != time.March {
		t.Errorf("tomorrow resolved to %v", s.TargetDate)
	}
	if s.IsRecurringInstance {
		t.Error("plain signal marked recurring")
	}
}

func TestExtract_FiltersProposals(t *testing.T) {
	comp := &fakeComprehender{proposals: []Proposal{
		{Type: "event", Content: "low confidence", TargetDay: "tomorrow", Confidence: 0.3},
		{Type: "meeting", Content: "bad kind", TargetDay: "tomorrow", Confidence: 0.9},
		{Type: "event", Content: "bad day", TargetDay: "someday", Confidence: 0.9},
		{Type: "event", Content: "keeper", TargetDay: "friday", Sentiment: "weird", Confidence: 0.9},
	}}
	e := NewExtractor(comp, nil)

	signals, _, err := e.Extract(context.Background(), "things happening tomorrow and friday", wednesday)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected 1 surviving signal, got %d: %v", len(signals), signals)
	}
	if signals[0].Content != "keeper" {
		t.Errorf("wrong survivor: %+v", signals[0])
	}
	if signals[0].Sentiment != SentimentNeutral {
		t.Errorf("unknown sentiment should normalize to neutral, got %s", signals[0].Sentiment)
	}
}

func TestExtract_SurvivorInvariant(t *testing.T) {
	comp := &fakeComprehender{proposals: []Proposal{
		{Type: "plan", Content: "a", TargetDay: "tomorrow", Confidence: 0.41},
		{Type: "event", Content: "b", TargetDay: "every_monday", Confidence: 0.9},
	}}
	e := NewExtractor(comp, nil)

	signals, _, err := e.Extract(context.Background(), "tomorrow and every monday", wednesday)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, s := range signals {
		if s.TargetDate.IsZero() {
			t.Errorf("signal %q has zero target date", s.Content)
		}
		if s.Confidence < MinConfidence {
			t.Errorf("signal %q confidence %f below floor", s.Content, s.Confidence)
		}
	}
}

func TestExtract_RecurringExpansion(t *testing.T) {
	tuesday := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	comp := &fakeComprehender{proposals: []Proposal{{
		Type:       "plan",
		Content:    "gym session",
		TargetDay:  "every_monday",
		Sentiment:  "hopeful",
		Confidence: 0.9,
	}}}
	e := NewExtractor(comp, nil)

	signals, _, err := e.Extract(context.Background(), "gym every monday", tuesday)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(signals) != 4 {
		t.Fatalf("expected 4 occurrences, got %d", len(signals))
	}

	prev := 1.0
	for i, s := range signals {
		if !s.IsRecurringInstance || s.RecurringPattern != "every_monday" {
			t.Errorf("occurrence %d missing recurrence fields: %+v", i, s)
		}
		if s.OccurrenceIndex != i+1 {
			t.Errorf("occurrence %d index = %d", i, s.OccurrenceIndex)
		}
		if s.TargetDate.Weekday() != time.Monday {
			t.Errorf("occurrence %d falls on %v", i, s.TargetDate.Weekday())
		}
		if i > 0 {
			gap := signals[i].TargetDate.Sub(signals[i-1].TargetDate)
			if gap != 7*24*time.Hour {
				t.Errorf("occurrence gap %d->%d = %v", i-1, i, gap)
			}
		}
		if s.Confidence >= prev {
			t.Errorf("occurrence %d confidence %f not decreasing", i, s.Confidence)
		}
		prev = s.Confidence
	}
}

func TestExtract_RecurringConfidenceFloor(t *testing.T) {
	comp := &fakeComprehender{proposals: []Proposal{{
		Type: "plan", Content: "walk", TargetDay: "daily", Confidence: 0.5,
	}}}
	e := NewExtractor(comp, nil)

	signals, _, err := e.Extract(context.Background(), "walk daily", wednesday)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, s := range signals {
		if s.Confidence < 0.5 {
			t.Errorf("occurrence %d confidence %f below floor", s.OccurrenceIndex, s.Confidence)
		}
	}
}

func TestExtract_PhraseTruncation(t *testing.T) {
	comp := &fakeComprehender{proposals: []Proposal{{
		Type:           "event",
		Content:        "long quote",
		TargetDay:      "tomorrow",
		OriginalPhrase: strings.Repeat("x", 500),
		Confidence:     0.8,
	}}}
	e := NewExtractor(comp, nil)

	signals, _, err := e.Extract(context.Background(), "tomorrow", wednesday)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	if n := len(signals[0].OriginalPhrase); n > 120 {
		t.Errorf("phrase length %d exceeds bound", n)
	}
}

func TestExtract_ComprehensionError(t *testing.T) {
	comp := &fakeComprehender{err: errors.New("model unavailable")}
	e := NewExtractor(comp, nil)

	_, _, err := e.Extract(context.Background(), "dentist tomorrow", wednesday)
	if err == nil {
		t.Fatal("expected error")
	}
}
