package config

import (
	"cmp"
	"slices"
	"strings"
)

// Modules are started in tiers so that services exist before their
// consumers provision: storage and telemetry first, then the engine,
// then everything built on top of it.
var tiers = map[string]int{
	"session":   0,
	"telemetry": 0,
	"engine":    1,
}

func tier(id string) int {
	ns, _, _ := strings.Cut(id, ".")
	if t, ok := tiers[ns]; ok {
		return t
	}
	return 2
}

// Resolve returns the module IDs of the configuration in load order:
// by tier, then lexically within a tier.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(cmp.Compare(tier(a), tier(b)), strings.Compare(a, b))
	})
	return ids
}
