// Package entitlement provides the local feature gate. Driftline runs
// on-device, so entitlement is a config flag rather than a billing
// service call; the oracle shape stays so a hosted deployment can swap
// in a remote check.
package entitlement

import (
	"context"

	"github.com/driftline-app/driftline/internal/gaps"
)

// Local answers entitlement checks from static config.
type Local struct {
	features map[string]bool
}

// NewLocal builds a Local oracle. gapPrompts gates the gap prompt
// feature; unknown features are not entitled.
func NewLocal(gapPrompts bool) *Local {
	return &Local{features: map[string]bool{
		gaps.FeatureGapPrompts: gapPrompts,
	}}
}

func (l *Local) CheckEntitlement(_ context.Context, _ string, featureKey string) (gaps.Entitlement, error) {
	if l.features[featureKey] {
		return gaps.Entitlement{Entitled: true}, nil
	}
	return gaps.Entitlement{Entitled: false, Reason: "feature disabled in config"}, nil
}
