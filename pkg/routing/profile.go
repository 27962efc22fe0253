// Package routing selects a model for each request. A registry holds the
// configured model profiles and answers cost and capability queries; the
// router applies one of four strategies on top of a complexity score.
package routing

import (
	"github.com/mdkashifakram/LLMGuardian/pkg/complexity"
)

// Capability ranks what a model can reliably handle.
type Capability string

const (
	CapabilityBasic    Capability = "basic"
	CapabilityStandard Capability = "standard"
	CapabilityAdvanced Capability = "advanced"
)

// Rank orders capabilities as basic < standard < advanced. Unknown
// capabilities rank below basic so they never win a most-capable query.
func (c Capability) Rank() int {
	switch c {
	case CapabilityBasic:
		return 1
	case CapabilityStandard:
		return 2
	case CapabilityAdvanced:
		return 3
	default:
		return 0
	}
}

// Profile describes one routable model.
type Profile struct {
	ModelID          string
	DisplayName      string
	Provider         string
	InputCostPer1K   float64
	OutputCostPer1K  float64
	MaxContextTokens int
	Capability       Capability
	Enabled          bool
}

// CanHandle reports whether the profile is trusted at the given complexity
// level. Basic models take only simple prompts, standard models everything
// short of complex, advanced models everything.
func (p Profile) CanHandle(level complexity.Level) bool {
	switch p.Capability {
	case CapabilityBasic:
		return level == complexity.LevelSimple
	case CapabilityStandard:
		return level != complexity.LevelComplex
	case CapabilityAdvanced:
		return true
	default:
		return false
	}
}

// EstimateCost returns the dollar cost of a request at this profile's rates.
func (p Profile) EstimateCost(inputTokens, outputTokens int) float64 {
	in := float64(inputTokens) / 1000.0 * p.InputCostPer1K
	out := float64(outputTokens) / 1000.0 * p.OutputCostPer1K
	return in + out
}

// CostEffective reports whether input pricing is under a tenth of a cent
// per thousand tokens.
func (p Profile) CostEffective() bool {
	return p.InputCostPer1K < 0.001
}

// DefaultProfiles returns the built-in OpenAI model set used when the
// configuration does not supply its own profiles.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			ModelID:          "gpt-4o-mini",
			DisplayName:      "GPT-4o Mini",
			Provider:         "OpenAI",
			InputCostPer1K:   0.00015,
			OutputCostPer1K:  0.0006,
			MaxContextTokens: 128000,
			Capability:       CapabilityStandard,
			Enabled:          true,
		},
		{
			ModelID:          "gpt-4o",
			DisplayName:      "GPT-4o",
			Provider:         "OpenAI",
			InputCostPer1K:   0.0025,
			OutputCostPer1K:  0.01,
			MaxContextTokens: 128000,
			Capability:       CapabilityAdvanced,
			Enabled:          true,
		},
		{
			ModelID:          "gpt-3.5-turbo",
			DisplayName:      "GPT-3.5 Turbo",
			Provider:         "OpenAI",
			InputCostPer1K:   0.0005,
			OutputCostPer1K:  0.0015,
			MaxContextTokens: 16385,
			Capability:       CapabilityBasic,
			Enabled:          true,
		},
	}
}
