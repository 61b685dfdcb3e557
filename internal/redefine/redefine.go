// Package redefine filters batches of loaded units proposed for a later
// re-instrumentation pass.
//
// Re-instrumenting the instrumentor's own support code can corrupt the
// pipeline or recurse indefinitely, so everything the agent brought into the
// process is excluded: units from the agent's isolated loader, units from
// the extension loader, accessor units the pipeline generated as a
// byproduct, and identity-tracked injected helpers.
package redefine

import (
	"strings"

	"github.com/fyrsmithlabs/attachd/pkg/host"
	"github.com/fyrsmithlabs/attachd/pkg/ignore"
	"github.com/fyrsmithlabs/attachd/pkg/pipeline"
)

// Filter selects the subset of a batch eligible for rewriting.
type Filter struct {
	agentLoader     string
	extensionLoader string
	injected        *ignore.InjectedRegistry
}

// NewFilter returns a filter excluding the given loaders and the registry's
// injected helpers. injected may be nil.
func NewFilter(agentLoader, extensionLoader string, injected *ignore.InjectedRegistry) *Filter {
	return &Filter{
		agentLoader:     agentLoader,
		extensionLoader: extensionLoader,
		injected:        injected,
	}
}

// Eligible returns the units from batch that may be re-instrumented,
// preserving order.
func (f *Filter) Eligible(batch []host.LoadedUnit) []host.LoadedUnit {
	out := make([]host.LoadedUnit, 0, len(batch))
	for _, u := range batch {
		if f.Excluded(u.Name, u.Loader) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Excluded reports whether a single unit belongs to the agent's own support
// code. It doubles as one side of the pipeline's skip predicate.
func (f *Filter) Excluded(name, loader string) bool {
	if loader != "" && (loader == f.agentLoader || loader == f.extensionLoader) {
		return true
	}
	if strings.HasPrefix(name, pipeline.GeneratedAccessorPrefix) {
		return true
	}
	return f.injected != nil && f.injected.IsInjected(loader, name)
}
