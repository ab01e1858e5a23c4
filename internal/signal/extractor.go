package signal

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/driftline-app/driftline/internal/temporal"
)

// Proposal is one candidate signal as emitted by the comprehension
// collaborator, before any validation.
type Proposal struct {
	Type           string  `json:"type"`
	Content        string  `json:"content"`
	TargetDay      string  `json:"target_day"`
	Sentiment      string  `json:"sentiment"`
	OriginalPhrase string  `json:"original_phrase"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// Comprehender turns raw entry text into signal proposals. Implemented
// by comprehension.Client.
type Comprehender interface {
	ProposeSignals(ctx context.Context, text string, ref time.Time) ([]Proposal, error)
}

// reEmotional is a cheap screen for feeling-laden text that carries no
// explicit temporal marker ("I'm dreading it", "so excited").
var reEmotional = regexp.MustCompile(`(?i)\b(feel|feeling|felt|excited|nervous|anxious|worried|dreading|dread|hoping|hope|scared|stressed|looking forward|can't wait|cannot wait)\b`)

// Extractor runs the extraction pipeline for a piece of text:
// pre-screen, comprehension call, validation, recurrence expansion.
type Extractor struct {
	comp Comprehender
	log  *slog.Logger

	// recurring-instance confidence decay per occurrence
	instanceDecay float64
	instanceFloor float64
}

// NewExtractor creates an Extractor over the given comprehension
// collaborator.
func NewExtractor(comp Comprehender, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		comp:          comp,
		log:           log,
		instanceDecay: 0.95,
		instanceFloor: 0.5,
	}
}

// ShouldExtract reports whether the text is worth a comprehension
// call. It must stay cheap; it runs on every entry.
func ShouldExtract(text string) bool {
	return temporal.HasTemporalIndicators(text) || reEmotional.MatchString(text)
}

// Extract returns the validated signals found in text, plus whether
// the text carried temporal content at all. Text that fails the
// pre-screen never reaches the comprehension collaborator.
func (e *Extractor) Extract(ctx context.Context, text string, ref time.Time) ([]Signal, bool, error) {
	hasTemporal := temporal.HasTemporalIndicators(text)
	if !hasTemporal && !reEmotional.MatchString(text) {
		return nil, false, nil
	}

	proposals, err := e.comp.ProposeSignals(ctx, text, ref)
	if err != nil {
		return nil, hasTemporal, fmt.Errorf("proposing signals: %w", err)
	}

	var signals []Signal
	for _, p := range proposals {
		signals = append(signals, e.validate(p, ref)...)
	}
	return signals, hasTemporal, nil
}

// validate filters one proposal through the confidence and
// date-resolution gates, expanding recurrence tokens into discrete
// instances. A proposal can yield zero, one, or several signals.
func (e *Extractor) validate(p Proposal, ref time.Time) []Signal {
	if p.Confidence < MinConfidence {
		e.log.Debug("dropping low-confidence proposal",
			slog.String("content", p.Content),
			slog.Float64("confidence", p.Confidence))
		return nil
	}

	kind := Kind(p.Type)
	if !validKind(kind) {
		e.log.Debug("dropping proposal with unknown kind", slog.String("type", p.Type))
		return nil
	}

	sentiment := Sentiment(p.Sentiment)
	if !validSentiment(sentiment) {
		sentiment = SentimentNeutral
	}

	base := Signal{
		Kind:           kind,
		Content:        p.Content,
		TargetDay:      p.TargetDay,
		Sentiment:      sentiment,
		OriginalPhrase: truncatePhrase(p.OriginalPhrase),
		Confidence:     p.Confidence,
	}

	if temporal.IsRecurrenceToken(p.TargetDay) {
		return e.expandRecurring(base, ref)
	}

	date, ok := temporal.ResolveTargetDay(p.TargetDay, ref)
	if !ok {
		e.log.Debug("dropping proposal with unresolvable target day",
			slog.String("target_day", p.TargetDay))
		return nil
	}
	base.TargetDate = date
	return []Signal{base}
}

// expandRecurring turns one recurring proposal into bounded discrete
// instances with 1-based occurrence indexes and decayed confidence.
func (e *Extractor) expandRecurring(base Signal, ref time.Time) []Signal {
	dates := temporal.ExpandPattern(base.TargetDay, ref)
	if len(dates) == 0 {
		e.log.Warn("recurrence token produced no occurrences",
			slog.String("target_day", base.TargetDay))
		return nil
	}

	out := make([]Signal, 0, len(dates))
	conf := base.Confidence
	for i, d := range dates {
		conf *= e.instanceDecay
		if conf < e.instanceFloor {
			conf = e.instanceFloor
		}
		inst := base
		inst.TargetDate = d
		inst.Confidence = conf
		inst.IsRecurringInstance = true
		inst.RecurringPattern = base.TargetDay
		inst.OccurrenceIndex = i + 1
		out = append(out, inst)
	}
	return out
}
