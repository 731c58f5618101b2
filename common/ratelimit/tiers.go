package ratelimit

import (
	"github.com/lyzr/flow/common/nodes"
	"github.com/lyzr/flow/common/workflow"
)

// Tier buckets workflows by how expensive one run is. LLM-backed nodes
// dominate run cost, so the tier follows their count.
type Tier string

const (
	TierSimple   Tier = "simple"   // no LLM nodes
	TierStandard Tier = "standard" // 1-2 LLM nodes
	TierHeavy    Tier = "heavy"    // 3+ LLM nodes
)

// TierConfig defines the admission window for one tier
type TierConfig struct {
	Tier          Tier
	Limit         int64
	WindowSeconds int
	Description   string
}

// tierConfigs holds the per-tier windows. Separate counters per tier keep
// cheap workflows from being starved behind heavy ones.
var tierConfigs = map[Tier]TierConfig{
	TierSimple:   {Tier: TierSimple, Limit: 100, WindowSeconds: 60, Description: "no LLM nodes, 100 runs/minute"},
	TierStandard: {Tier: TierStandard, Limit: 20, WindowSeconds: 60, Description: "1-2 LLM nodes, 20 runs/minute"},
	TierHeavy:    {Tier: TierHeavy, Limit: 5, WindowSeconds: 60, Description: "3 or more LLM nodes, 5 runs/minute"},
}

// LimitForTier returns the run budget for a tier, falling back to the most
// restrictive tier for unknown values.
func LimitForTier(tier Tier) int64 {
	if cfg, ok := tierConfigs[tier]; ok {
		return cfg.Limit
	}
	return tierConfigs[TierHeavy].Limit
}

// WindowForTier returns the window length in seconds for a tier.
func WindowForTier(tier Tier) int {
	if cfg, ok := tierConfigs[tier]; ok {
		return cfg.WindowSeconds
	}
	return tierConfigs[TierHeavy].WindowSeconds
}

// Tiers returns every configured tier, for documentation responses.
func Tiers() []TierConfig {
	return []TierConfig{
		tierConfigs[TierSimple],
		tierConfigs[TierStandard],
		tierConfigs[TierHeavy],
	}
}

// Profile is the complexity analysis of one workflow
type Profile struct {
	Tier     Tier
	LLMNodes int
	Total    int
}

// Inspect classifies a workflow by counting its enabled LLM-backed nodes.
// Disabled nodes pass items through without executing, so they cost
// nothing and stay out of the count.
func Inspect(wf *workflow.Workflow) Profile {
	profile := Profile{Tier: TierSimple}
	if wf == nil {
		return profile
	}
	profile.Total = len(wf.Nodes)

	for _, node := range wf.Nodes {
		if node.Disabled {
			continue
		}
		if node.Type == nodes.TypeLLMChat || node.Type == nodes.TypeAIAgent {
			profile.LLMNodes++
		}
	}

	switch {
	case profile.LLMNodes == 0:
		profile.Tier = TierSimple
	case profile.LLMNodes <= 2:
		profile.Tier = TierStandard
	default:
		profile.Tier = TierHeavy
	}
	return profile
}
