package gaps

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/driftline-app/driftline/internal/engagement"
)

// FeatureGapPrompts is the entitlement key gating prompt generation.
const FeatureGapPrompts = "gap_prompts"

// Entitlement is the oracle's answer.
type Entitlement struct {
	Entitled bool
	Reason   string
}

// EntitlementOracle is the external premium check. It fails closed:
// any error means no prompt.
type EntitlementOracle interface {
	CheckEntitlement(ctx context.Context, userID, featureKey string) (Entitlement, error)
}

// EntrySource supplies the recent-entry window the safety gates read.
type EntrySource interface {
	RecentEntries(ctx context.Context, userID string, limit int) ([]EntrySnapshot, error)
}

// PreferenceSource supplies engagement preferences. Implemented by
// engagement.Manager.
type PreferenceSource interface {
	Get(ctx context.Context, userID string) (engagement.Preferences, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// GapPrompt is the single user-facing prompt a generation pass yields.
type GapPrompt struct {
	Domain      string
	Style       Style
	Text        string
	GapScore    float64
	GeneratedAt time.Time
}

// recentEntryWindow is how many entries feed the safety gates.
const recentEntryWindow = 30

// Generator turns the worst-scoring gap into one prompt per call.
type Generator struct {
	detector     *Detector
	safety       *SafetyFilter
	entitlements EntitlementOracle
	entries      EntrySource
	prefs        PreferenceSource
	clock        Clock
	rng          *rand.Rand
}

// NewGenerator wires a Generator. The random source drives style
// selection and template choice; pass a seeded one in tests.
func NewGenerator(detector *Detector, safety *SafetyFilter, entitlements EntitlementOracle, entries EntrySource, prefs PreferenceSource, clock Clock, rng *rand.Rand) *Generator {
	if clock == nil {
		clock = realClock{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{
		detector:     detector,
		safety:       safety,
		entitlements: entitlements,
		entries:      entries,
		prefs:        prefs,
		clock:        clock,
		rng:          rng,
	}
}

// GenerateGapPrompt runs the full pipeline and returns at most one
// prompt, or nil when anything along the way says "not now".
//
// Ordering matters: the entitlement check runs before anything else,
// and on denial or error no other collaborator is touched.
func (g *Generator) GenerateGapPrompt(ctx context.Context, userID string) (*GapPrompt, error) {
	ent, err := g.entitlements.CheckEntitlement(ctx, userID, FeatureGapPrompts)
	if err != nil {
		slog.Warn("entitlement check failed, suppressing gap prompt",
			"user_id", userID, "error", err)
		return nil, nil
	}
	if !ent.Entitled {
		slog.Debug("gap prompts not entitled", "user_id", userID, "reason", ent.Reason)
		return nil, nil
	}

	recent, err := g.entries.RecentEntries(ctx, userID, recentEntryWindow)
	if err != nil {
		slog.Warn("loading recent entries failed, suppressing gap prompt",
			"user_id", userID, "error", err)
		return nil, nil
	}
	if !g.safety.ShouldShowGapPrompt(ctx, userID, recent) {
		return nil, nil
	}

	gaps, err := g.detector.DetectGaps(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	gaps = g.safety.FilterGapsForSafety(gaps, recent)

	prefs, err := g.prefs.Get(ctx, userID)
	if err != nil {
		// Personalization only: fall back to empty preferences.
		slog.Warn("engagement preferences unavailable, using defaults",
			"user_id", userID, "error", err)
		prefs = engagement.Preferences{}
	}

	now := g.clock.Now()
	gaps = dropSnoozed(gaps, prefs, now)
	if len(gaps) == 0 {
		return nil, nil
	}
	top := gaps[0]

	style := g.selectStyle(prefs)
	if g.safety.RequiresGentleTone(top.Domain, recent) {
		style = StyleGentle
	}

	text := RenderPrompt(style, top.Domain, top.DaysSinceMention, now, g.rng.Intn)
	return &GapPrompt{
		Domain:      top.Domain,
		Style:       style,
		Text:        text,
		GapScore:    top.GapScore,
		GeneratedAt: now,
	}, nil
}

func dropSnoozed(gaps []GapRecord, prefs engagement.Preferences, now time.Time) []GapRecord {
	out := gaps[:0]
	for _, g := range gaps {
		if until, ok := prefs.SnoozeUntil[g.Domain]; ok && now.Before(until) {
			continue
		}
		out = append(out, g)
	}
	return out
}

// selectStyle picks a style by weighted random choice: 70% of the
// weight follows each style's share of historical acceptances, 30% is
// spread uniformly as an exploration floor. With no history the
// distribution is purely uniform.
func (g *Generator) selectStyle(prefs engagement.Preferences) Style {
	total := 0
	for _, s := range Styles {
		total += prefs.StyleAcceptance[string(s)]
	}

	n := float64(len(Styles))
	weights := make([]float64, len(Styles))
	for i, s := range Styles {
		if total == 0 {
			weights[i] = 1 / n
			continue
		}
		share := float64(prefs.StyleAcceptance[string(s)]) / float64(total)
		weights[i] = 0.7*share + 0.3/n
	}

	r := g.rng.Float64()
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r < acc {
			return Styles[i]
		}
	}
	return Styles[len(Styles)-1]
}
