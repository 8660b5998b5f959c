package routing

// Router resolves the adapter and model to use for a given phase.
type Router struct {
	routing *PhaseRouting
}

// NewRouter builds a Router. Nil-safe: a nil routing table makes every
// lookup return a zero ModelConfig (meaning: use the workflow default).
func NewRouter(routing *PhaseRouting) *Router {
	return &Router{routing: routing}
}

// ModelForPhase returns the override configured for phase, or Default
// if phase has no override.
func (r *Router) ModelForPhase(phase string) ModelConfig {
	if r.routing == nil {
		return ModelConfig{}
	}
	if r.routing.Overrides != nil {
		if cfg, ok := r.routing.Overrides[phase]; ok {
			return cfg
		}
	}
	return r.routing.Default
}

// IsConfigured reports whether the router carries any usable routing
// config at all.
func (r *Router) IsConfigured() bool {
	if r.routing == nil {
		return false
	}
	return r.routing.Default.Adapter != "" || r.routing.Default.Model != "" || len(r.routing.Overrides) > 0
}

// Adapters returns the set of distinct adapter names referenced across
// the default and every override, so a controller can initialize all
// of them upfront rather than discovering a missing one mid-run.
func (r *Router) Adapters() []string {
	if r.routing == nil {
		return nil
	}

	seen := make(map[string]bool)
	if r.routing.Default.Adapter != "" {
		seen[r.routing.Default.Adapter] = true
	}
	for _, cfg := range r.routing.Overrides {
		if cfg.Adapter != "" {
			seen[cfg.Adapter] = true
		}
	}

	adapters := make([]string, 0, len(seen))
	for name := range seen {
		adapters = append(adapters, name)
	}
	return adapters
}
