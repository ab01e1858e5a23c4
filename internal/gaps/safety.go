package gaps

import (
	"context"
	"log/slog"
	"time"
)

// EntrySnapshot is the slice of a journal entry the safety filter
// needs: when it was written, which domains it touched, and the two
// safety annotations set upstream.
type EntrySnapshot struct {
	ID               string
	Domains          []string
	SafetyFlagged    bool
	WarningIndicator bool
	CreatedAt        time.Time
}

// RiskAssessment is the longitudinal risk collaborator's verdict over
// a window of recent entries.
type RiskAssessment struct {
	IsAtRisk bool
	Reason   string
	Flags    []string
}

// RiskChecker is the longitudinal risk collaborator.
type RiskChecker interface {
	CheckLongitudinalRisk(ctx context.Context, recent []EntrySnapshot) (RiskAssessment, error)
}

// SafetyFilter gates gap prompting on the user's recent state. All
// three gates fail toward silence: when in doubt, no prompt.
type SafetyFilter struct {
	risk RiskChecker
}

// NewSafetyFilter creates a SafetyFilter over the risk collaborator.
func NewSafetyFilter(risk RiskChecker) *SafetyFilter {
	return &SafetyFilter{risk: risk}
}

// ShouldShowGapPrompt is the master gate. Any error from the risk
// check suppresses prompting (fail closed).
func (f *SafetyFilter) ShouldShowGapPrompt(ctx context.Context, userID string, recent []EntrySnapshot) bool {
	assessment, err := f.risk.CheckLongitudinalRisk(ctx, recent)
	if err != nil {
		slog.Warn("risk check failed, suppressing gap prompt",
			"user_id", userID, "error", err)
		return false
	}
	if assessment.IsAtRisk {
		slog.Info("gap prompt suppressed by risk assessment",
			"user_id", userID, "reason", assessment.Reason)
		return false
	}
	return true
}

// FilterGapsForSafety drops any domain whose single most recent entry
// is safety-flagged. Older flagged entries do not suppress a domain
// once a newer, unflagged entry exists, and warning indicators alone
// never suppress.
func (f *SafetyFilter) FilterGapsForSafety(gaps []GapRecord, recent []EntrySnapshot) []GapRecord {
	out := make([]GapRecord, 0, len(gaps))
	for _, g := range gaps {
		latest := latestEntryForDomain(recent, g.Domain)
		if latest != nil && latest.SafetyFlagged {
			continue
		}
		out = append(out, g)
	}
	return out
}

// RequiresGentleTone reports whether the domain's most recent entry
// carries a warning indicator, forcing the gentle style regardless of
// the user's stored preference.
func (f *SafetyFilter) RequiresGentleTone(domain string, recent []EntrySnapshot) bool {
	latest := latestEntryForDomain(recent, domain)
	return latest != nil && latest.WarningIndicator
}

// latestEntryForDomain picks the chronologically newest entry that
// touches domain; ties are irrelevant, any max works.
func latestEntryForDomain(recent []EntrySnapshot, domain string) *EntrySnapshot {
	var latest *EntrySnapshot
	for i := range recent {
		e := &recent[i]
		if !touchesDomain(e, domain) {
			continue
		}
		if latest == nil || e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	return latest
}

func touchesDomain(e *EntrySnapshot, domain string) bool {
	for _, d := range e.Domains {
		if d == domain {
			return true
		}
	}
	return false
}
