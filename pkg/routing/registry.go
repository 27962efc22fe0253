package routing

import (
	"github.com/mdkashifakram/LLMGuardian/pkg/complexity"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
)

// DefaultModelID is the registry's designated fallback profile.
const DefaultModelID = "gpt-4o-mini"

// Registry holds the routable model profiles keyed by model id. Profiles are
// fixed at construction; a config reload builds a fresh registry.
type Registry struct {
	profiles map[string]Profile
	order    []string
}

// NewRegistry builds a registry from the given profiles. An empty list
// selects the built-in model set. Later duplicates of a model id replace
// earlier ones.
func NewRegistry(profiles []Profile) *Registry {
	if len(profiles) == 0 {
		profiles = DefaultProfiles()
	}
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if _, seen := r.profiles[p.ModelID]; !seen {
			r.order = append(r.order, p.ModelID)
		}
		r.profiles[p.ModelID] = p
	}
	logging.Infof("model registry initialized with %d profiles (%d enabled)", r.Count(), r.EnabledCount())
	return r
}

// Lookup returns the profile for a model id.
func (r *Registry) Lookup(modelID string) (Profile, bool) {
	p, ok := r.profiles[modelID]
	return p, ok
}

// Default resolves the profile used when a strategy's first choice is absent
// or disabled: the designated default when it is usable, otherwise the
// cheapest enabled profile, otherwise the first registered profile.
func (r *Registry) Default() Profile {
	if p, ok := r.profiles[DefaultModelID]; ok && p.Enabled {
		return p
	}
	if p, ok := r.cheapestEnabled(); ok {
		return p
	}
	logging.Warnf("model registry has no enabled profiles, falling back to %s", r.order[0])
	return r.profiles[r.order[0]]
}

// Cheapest returns the enabled profile with the lowest input cost.
func (r *Registry) Cheapest() Profile {
	if p, ok := r.cheapestEnabled(); ok {
		return p
	}
	return r.Default()
}

func (r *Registry) cheapestEnabled() (Profile, bool) {
	var best Profile
	found := false
	for _, id := range r.order {
		p := r.profiles[id]
		if !p.Enabled {
			continue
		}
		if !found || p.InputCostPer1K < best.InputCostPer1K {
			best = p
			found = true
		}
	}
	return best, found
}

// MostCapable returns the highest-ranked enabled profile. Ties resolve to
// the earlier registration.
func (r *Registry) MostCapable() Profile {
	var best Profile
	found := false
	for _, id := range r.order {
		p := r.profiles[id]
		if !p.Enabled {
			continue
		}
		if !found || p.Capability.Rank() > best.Capability.Rank() {
			best = p
			found = true
		}
	}
	if !found {
		return r.Default()
	}
	return best
}

// CheapestForLevel returns the cheapest enabled profile that can handle the
// given complexity level, or the default profile when none qualifies.
func (r *Registry) CheapestForLevel(level complexity.Level) Profile {
	var best Profile
	found := false
	for _, id := range r.order {
		p := r.profiles[id]
		if !p.Enabled || !p.CanHandle(level) {
			continue
		}
		if !found || p.InputCostPer1K < best.InputCostPer1K {
			best = p
			found = true
		}
	}
	if !found {
		return r.Default()
	}
	return best
}

// Profiles returns every registered profile in registration order.
func (r *Registry) Profiles() []Profile {
	out := make([]Profile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.profiles[id])
	}
	return out
}

// EnabledProfiles returns the enabled profiles in registration order.
func (r *Registry) EnabledProfiles() []Profile {
	out := make([]Profile, 0, len(r.order))
	for _, id := range r.order {
		if p := r.profiles[id]; p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Count returns the number of registered profiles.
func (r *Registry) Count() int {
	return len(r.profiles)
}

// EnabledCount returns the number of enabled profiles.
func (r *Registry) EnabledCount() int {
	n := 0
	for _, p := range r.profiles {
		if p.Enabled {
			n++
		}
	}
	return n
}
