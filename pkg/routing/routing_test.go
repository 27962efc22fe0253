package routing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdkashifakram/LLMGuardian/pkg/complexity"
)

func scoreAt(points int) complexity.Score {
	return complexity.Score{Score: points, Level: complexity.LevelFor(points)}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Strategy
		ok    bool
	}{
		{name: "complexity", input: "complexity", want: StrategyComplexity, ok: true},
		{name: "cost", input: "cost", want: StrategyCost, ok: true},
		{name: "performance", input: "performance", want: StrategyPerformance, ok: true},
		{name: "balanced", input: "balanced", want: StrategyBalanced, ok: true},
		{name: "unknown falls back", input: "cheapest", want: StrategyComplexity, ok: false},
		{name: "empty falls back", input: "", want: StrategyComplexity, ok: false},
		{name: "case sensitive", input: "COST", want: StrategyComplexity, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseStrategy(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestProfileCanHandle(t *testing.T) {
	tests := []struct {
		capability Capability
		simple     bool
		medium     bool
		complexOK  bool
	}{
		{capability: CapabilityBasic, simple: true, medium: false, complexOK: false},
		{capability: CapabilityStandard, simple: true, medium: true, complexOK: false},
		{capability: CapabilityAdvanced, simple: true, medium: true, complexOK: true},
		{capability: Capability("wild"), simple: false, medium: false, complexOK: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.capability), func(t *testing.T) {
			p := Profile{Capability: tt.capability}
			assert.Equal(t, tt.simple, p.CanHandle(complexity.LevelSimple))
			assert.Equal(t, tt.medium, p.CanHandle(complexity.LevelMedium))
			assert.Equal(t, tt.complexOK, p.CanHandle(complexity.LevelComplex))
		})
	}
}

func TestProfileEstimateCost(t *testing.T) {
	mini := Profile{InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006}

	assert.InDelta(t, 0.00075, mini.EstimateCost(1000, 1000), 1e-9)
	assert.InDelta(t, 0.000165, mini.EstimateCost(100, 250), 1e-9)
	assert.Zero(t, mini.EstimateCost(0, 0))
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(nil)

	p, ok := r.Lookup("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, "GPT-4o", p.DisplayName)
	assert.Equal(t, CapabilityAdvanced, p.Capability)

	_, ok = r.Lookup("claude-3")
	assert.False(t, ok)
}

func TestRegistryBuiltinQueries(t *testing.T) {
	r := NewRegistry(nil)

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, 3, r.EnabledCount())
	assert.Equal(t, "gpt-4o-mini", r.Cheapest().ModelID)
	assert.Equal(t, "gpt-4o", r.MostCapable().ModelID)
	assert.Equal(t, "gpt-4o-mini", r.Default().ModelID)

	tests := []struct {
		level complexity.Level
		want  string
	}{
		{level: complexity.LevelSimple, want: "gpt-4o-mini"},
		{level: complexity.LevelMedium, want: "gpt-4o-mini"},
		{level: complexity.LevelComplex, want: "gpt-4o"},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.want, r.CheapestForLevel(tt.level).ModelID)
		})
	}
}

func TestRegistryConfiguredProfilesReplaceBuiltins(t *testing.T) {
	r := NewRegistry([]Profile{
		{ModelID: "own-small", InputCostPer1K: 0.0002, Capability: CapabilityStandard, Enabled: true},
		{ModelID: "own-large", InputCostPer1K: 0.003, Capability: CapabilityAdvanced, Enabled: true},
	})

	assert.Equal(t, 2, r.Count())
	_, ok := r.Lookup("gpt-4o-mini")
	assert.False(t, ok)
	assert.Equal(t, "own-small", r.Cheapest().ModelID)
	assert.Equal(t, "own-large", r.MostCapable().ModelID)
	assert.Equal(t, "own-small", r.Default().ModelID, "default resolves to cheapest when the designated id is absent")
}

func TestRegistryDefaultSkipsDisabledDesignated(t *testing.T) {
	r := NewRegistry([]Profile{
		{ModelID: "gpt-4o-mini", InputCostPer1K: 0.00015, Capability: CapabilityStandard, Enabled: false},
		{ModelID: "gpt-4o", InputCostPer1K: 0.0025, Capability: CapabilityAdvanced, Enabled: true},
	})

	assert.Equal(t, "gpt-4o", r.Default().ModelID)
	assert.Equal(t, "gpt-4o", r.Cheapest().ModelID)
	assert.Equal(t, 1, r.EnabledCount())
}

func TestRegistryAllDisabledStillResolves(t *testing.T) {
	r := NewRegistry([]Profile{
		{ModelID: "m1", Capability: CapabilityBasic, Enabled: false},
		{ModelID: "m2", Capability: CapabilityAdvanced, Enabled: false},
	})

	assert.Equal(t, "m1", r.Default().ModelID, "first registered profile is the last resort")
	assert.Equal(t, "m1", r.MostCapable().ModelID)
	assert.Equal(t, "m1", r.CheapestForLevel(complexity.LevelComplex).ModelID)
}

func TestRegistryProfilesKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry(nil)

	ids := make([]string, 0, 3)
	for _, p := range r.Profiles() {
		ids = append(ids, p.ModelID)
	}
	assert.Equal(t, []string{"gpt-4o-mini", "gpt-4o", "gpt-3.5-turbo"}, ids)
	assert.Len(t, r.EnabledProfiles(), 3)
}

func TestRouteStrategyTable(t *testing.T) {
	router := NewRouter(NewRegistry(nil), StrategyComplexity)

	tests := []struct {
		name     string
		score    complexity.Score
		strategy Strategy
		want     string
	}{
		{name: "complexity simple", score: scoreAt(10), strategy: StrategyComplexity, want: "gpt-4o-mini"},
		{name: "complexity medium", score: scoreAt(45), strategy: StrategyComplexity, want: "gpt-4o-mini"},
		{name: "complexity complex", score: scoreAt(80), strategy: StrategyComplexity, want: "gpt-4o"},
		{name: "cost ignores level", score: scoreAt(95), strategy: StrategyCost, want: "gpt-4o-mini"},
		{name: "performance ignores level", score: scoreAt(5), strategy: StrategyPerformance, want: "gpt-4o"},
		{name: "balanced simple", score: scoreAt(10), strategy: StrategyBalanced, want: "gpt-4o-mini"},
		{name: "balanced medium", score: scoreAt(45), strategy: StrategyBalanced, want: "gpt-4o-mini"},
		{name: "balanced complex below premium cutoff", score: scoreAt(70), strategy: StrategyBalanced, want: "gpt-4o-mini"},
		{name: "balanced complex at premium cutoff", score: scoreAt(75), strategy: StrategyBalanced, want: "gpt-4o"},
		{name: "balanced complex above premium cutoff", score: scoreAt(92), strategy: StrategyBalanced, want: "gpt-4o"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := router.RouteWithStrategy(tt.score, tt.strategy)
			assert.Equal(t, tt.want, got.ModelID)
			assert.Equal(t, tt.strategy, got.Strategy)
			assert.Equal(t, tt.score.Level, got.Complexity.Level)
			assert.NotEmpty(t, got.Rationale)
		})
	}
}

func TestRouteTotality(t *testing.T) {
	registries := map[string]*Registry{
		"builtins": NewRegistry(nil),
		"custom with disabled default": NewRegistry([]Profile{
			{ModelID: "gpt-4o-mini", InputCostPer1K: 0.00015, Capability: CapabilityStandard, Enabled: false},
			{ModelID: "tiny", InputCostPer1K: 0.0001, Capability: CapabilityBasic, Enabled: true},
			{ModelID: "big", InputCostPer1K: 0.004, Capability: CapabilityAdvanced, Enabled: true},
		}),
	}
	strategies := []Strategy{StrategyComplexity, StrategyCost, StrategyPerformance, StrategyBalanced}
	points := []int{0, 15, 30, 31, 45, 60, 61, 74, 75, 100}

	for label, registry := range registries {
		router := NewRouter(registry, StrategyComplexity)
		for _, strategy := range strategies {
			for _, pts := range points {
				name := fmt.Sprintf("%s/%s/%d", label, strategy, pts)
				t.Run(name, func(t *testing.T) {
					got := router.RouteWithStrategy(scoreAt(pts), strategy)
					p, ok := registry.Lookup(got.ModelID)
					require.True(t, ok, "decision must name a registered profile")
					assert.True(t, p.Enabled, "decision must name an enabled profile")
				})
			}
		}
	}
}

func TestRouteDefaultStrategy(t *testing.T) {
	router := NewRouter(NewRegistry(nil), StrategyCost)

	got := router.Route(scoreAt(90))
	assert.Equal(t, StrategyCost, got.Strategy)
	assert.Equal(t, "gpt-4o-mini", got.ModelID)
	assert.Equal(t, StrategyCost, router.DefaultStrategy())
}

func TestRouteUnknownStrategyFallsBack(t *testing.T) {
	router := NewRouter(NewRegistry(nil), Strategy("premium"))

	assert.Equal(t, StrategyComplexity, router.DefaultStrategy())

	got := router.RouteWithStrategy(scoreAt(80), Strategy("premium"))
	assert.Equal(t, StrategyComplexity, got.Strategy)
	assert.Equal(t, "gpt-4o", got.ModelID)
}

func TestRouteRationaleNamesModel(t *testing.T) {
	router := NewRouter(NewRegistry(nil), StrategyComplexity)

	tests := []struct {
		strategy Strategy
		contains string
	}{
		{strategy: StrategyComplexity, contains: "GPT-4o Mini"},
		{strategy: StrategyCost, contains: "cheapest"},
		{strategy: StrategyPerformance, contains: "most capable"},
		{strategy: StrategyBalanced, contains: "score 20"},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			got := router.RouteWithStrategy(scoreAt(20), tt.strategy)
			assert.Contains(t, got.Rationale, tt.contains)
		})
	}
}

func TestRouteToModel(t *testing.T) {
	router := NewRouter(NewRegistry(nil), StrategyComplexity)

	t.Run("registered model is pinned", func(t *testing.T) {
		got := router.RouteToModel("gpt-4o", scoreAt(5))
		assert.Equal(t, "gpt-4o", got.ModelID)
		assert.Equal(t, StrategyRequested, got.Strategy)
		assert.Contains(t, got.Rationale, "gpt-4o")
	})

	t.Run("unknown model falls back to strategy", func(t *testing.T) {
		got := router.RouteToModel("claude-3-opus", scoreAt(5))
		assert.Equal(t, "gpt-4o-mini", got.ModelID)
		assert.Equal(t, StrategyComplexity, got.Strategy)
	})

	t.Run("disabled model falls back to strategy", func(t *testing.T) {
		disabled := NewRouter(NewRegistry([]Profile{
			{ModelID: "m1", DisplayName: "M1", InputCostPer1K: 0.001, Capability: CapabilityStandard, Enabled: true},
			{ModelID: "m2", DisplayName: "M2", InputCostPer1K: 0.002, Capability: CapabilityAdvanced, Enabled: false},
		}), StrategyComplexity)

		got := disabled.RouteToModel("m2", scoreAt(5))
		assert.Equal(t, "m1", got.ModelID)
	})
}
