package routing

import (
	"fmt"
	"time"

	"github.com/mdkashifakram/LLMGuardian/pkg/complexity"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/metrics"
)

// Strategy names a model selection policy.
type Strategy string

const (
	// StrategyComplexity picks the default model for simple and medium
	// prompts and the most capable model for complex ones.
	StrategyComplexity Strategy = "complexity"
	// StrategyCost always picks the cheapest enabled model.
	StrategyCost Strategy = "cost"
	// StrategyPerformance always picks the most capable enabled model.
	StrategyPerformance Strategy = "performance"
	// StrategyBalanced trades cost against quality by level, reserving the
	// most capable model for scores of 75 and above.
	StrategyBalanced Strategy = "balanced"
	// StrategyRequested marks a decision where the caller pinned the model.
	// It is not selectable through configuration.
	StrategyRequested Strategy = "requested"
)

// ParseStrategy maps a wire name onto a Strategy.
func ParseStrategy(name string) (Strategy, bool) {
	switch Strategy(name) {
	case StrategyComplexity, StrategyCost, StrategyPerformance, StrategyBalanced:
		return Strategy(name), true
	}
	return StrategyComplexity, false
}

// Decision is the outcome of routing one request.
type Decision struct {
	ModelID       string
	ModelName     string
	Strategy      Strategy
	Rationale     string
	Complexity    complexity.Score
	RoutingMillis int64
}

// Router applies a strategy over the registry to pick a model per request.
type Router struct {
	registry        *Registry
	defaultStrategy Strategy
}

// NewRouter builds a router with the given default strategy. An unknown
// default silently becomes the complexity strategy.
func NewRouter(registry *Registry, defaultStrategy Strategy) *Router {
	s, ok := ParseStrategy(string(defaultStrategy))
	if !ok {
		logging.Warnf("unknown routing strategy %q, using %s", defaultStrategy, StrategyComplexity)
	}
	return &Router{registry: registry, defaultStrategy: s}
}

// DefaultStrategy returns the strategy used when a request does not name one.
func (r *Router) DefaultStrategy() Strategy {
	return r.defaultStrategy
}

// Registry returns the model registry the router selects from.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Route selects a model for the scored prompt using the default strategy.
func (r *Router) Route(score complexity.Score) Decision {
	return r.RouteWithStrategy(score, r.defaultStrategy)
}

// RouteWithStrategy selects a model using an explicit strategy. The returned
// decision always names an enabled profile.
func (r *Router) RouteWithStrategy(score complexity.Score, strategy Strategy) Decision {
	start := time.Now()
	if _, ok := ParseStrategy(string(strategy)); !ok {
		logging.Warnf("unknown routing strategy %q, using %s", strategy, StrategyComplexity)
		strategy = StrategyComplexity
	}

	selected := r.selectProfile(score, strategy)
	elapsed := time.Since(start)

	decision := Decision{
		ModelID:       selected.ModelID,
		ModelName:     selected.DisplayName,
		Strategy:      strategy,
		Rationale:     buildRationale(score, strategy, selected),
		Complexity:    score,
		RoutingMillis: elapsed.Milliseconds(),
	}

	metrics.RecordRoutingDecision(string(strategy), selected.ModelID, elapsed.Seconds())
	logging.Debugf("routed %s prompt to %s via %s strategy", score.Level, selected.ModelID, strategy)
	return decision
}

// RouteToModel honors an explicitly requested model, bypassing strategy
// selection. Unknown or disabled ids fall back to a normal route.
func (r *Router) RouteToModel(modelID string, score complexity.Score) Decision {
	start := time.Now()
	profile, ok := r.registry.Lookup(modelID)
	if !ok || !profile.Enabled {
		logging.Warnf("requested model %q not available, routing via %s strategy", modelID, r.defaultStrategy)
		return r.Route(score)
	}

	elapsed := time.Since(start)
	decision := Decision{
		ModelID:       profile.ModelID,
		ModelName:     profile.DisplayName,
		Strategy:      StrategyRequested,
		Rationale:     fmt.Sprintf("caller requested %s", profile.ModelID),
		Complexity:    score,
		RoutingMillis: elapsed.Milliseconds(),
	}
	metrics.RecordRoutingDecision(string(StrategyRequested), profile.ModelID, elapsed.Seconds())
	return decision
}

func (r *Router) selectProfile(score complexity.Score, strategy Strategy) Profile {
	switch strategy {
	case StrategyCost:
		return r.registry.Cheapest()
	case StrategyPerformance:
		return r.registry.MostCapable()
	case StrategyBalanced:
		return r.selectBalanced(score)
	default:
		return r.selectByComplexity(score)
	}
}

func (r *Router) selectByComplexity(score complexity.Score) Profile {
	if score.Level == complexity.LevelComplex {
		return r.registry.MostCapable()
	}
	return r.registry.Default()
}

// selectBalanced leans harder on cheap models than the complexity strategy:
// simple prompts take the cheapest model and only scores of 75+ are worth
// the most capable one.
func (r *Router) selectBalanced(score complexity.Score) Profile {
	switch score.Level {
	case complexity.LevelSimple:
		return r.registry.Cheapest()
	case complexity.LevelComplex:
		if score.Score >= 75 {
			return r.registry.MostCapable()
		}
		return r.registry.Default()
	default:
		return r.registry.Default()
	}
}

func buildRationale(score complexity.Score, strategy Strategy, selected Profile) string {
	switch strategy {
	case StrategyCost:
		return fmt.Sprintf("cost strategy -> cheapest enabled model %s ($%.6f/1k input)",
			selected.DisplayName, selected.InputCostPer1K)
	case StrategyPerformance:
		return fmt.Sprintf("performance strategy -> most capable model %s", selected.DisplayName)
	case StrategyBalanced:
		return fmt.Sprintf("balanced strategy with score %d -> selected %s", score.Score, selected.DisplayName)
	default:
		return fmt.Sprintf("complexity score %d (%s) -> selected %s for cost/quality balance",
			score.Score, score.Level, selected.DisplayName)
	}
}
