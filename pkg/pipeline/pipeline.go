// Package pipeline assembles the rewrite pipeline installed on the host's
// code-loading hook.
//
// A Builder starts from the base configuration (structural class-format
// changes disabled, retransformation strategy), collects skip predicates and
// transformation steps from pipeline-contributing extensions, and freezes
// into an immutable Pipeline. The Pipeline is the single host.Transformer
// the agent installs; after installation it is invoked concurrently from
// arbitrary loading goroutines.
package pipeline

import (
	"fmt"

	"github.com/fyrsmithlabs/attachd/pkg/host"
	"github.com/fyrsmithlabs/attachd/pkg/ignore"
)

// GeneratedAccessorPrefix names dynamically generated accessor units the
// pipeline produces as a byproduct of rewriting. Redefinition passes exclude
// them by this prefix.
const GeneratedAccessorPrefix = "attachd.generated.accessor"

// RedefinitionStrategy selects how already-loaded units are revisited.
type RedefinitionStrategy int

const (
	// RedefinitionRetransform re-runs the pipeline over already-loaded
	// units instead of replacing them wholesale.
	RedefinitionRetransform RedefinitionStrategy = iota
	// RedefinitionDisabled never revisits loaded units.
	RedefinitionDisabled
)

// Matcher decides whether a step or skip rule applies to a unit.
type Matcher func(name, loader string) bool

// Transform rewrites a unit's code. A nil result means no change.
type Transform func(unit host.CodeUnit) ([]byte, error)

// Observer is notified about individual unit outcomes. Observers run on the
// loading path and must be cheap.
type Observer interface {
	OnTransformation(name, loader string)
	OnError(name, loader string, err error)
}

// Builder accumulates pipeline configuration. Not safe for concurrent use;
// contributions happen on the single attaching goroutine.
type Builder struct {
	strategy  RedefinitionStrategy
	skip      Matcher
	steps     []step
	observers []Observer
	injected  *ignore.InjectedRegistry
}

type step struct {
	match Matcher
	apply Transform
}

// NewBuilder returns a builder with the base configuration: structural
// class-format changes stay disabled and loaded units are revisited by
// retransformation.
func NewBuilder() *Builder {
	return &Builder{strategy: RedefinitionRetransform}
}

// WithRedefinitionStrategy overrides the retransformation default.
func (b *Builder) WithRedefinitionStrategy(s RedefinitionStrategy) *Builder {
	b.strategy = s
	return b
}

// WithInjectedRegistry attaches the registry that records helper units the
// pipeline injects while rewriting.
func (b *Builder) WithInjectedRegistry(reg *ignore.InjectedRegistry) *Builder {
	b.injected = reg
	return b
}

// Ignore adds a skip predicate. Multiple predicates combine with logical OR:
// any one matching suffices to leave the unit untouched.
func (b *Builder) Ignore(m Matcher) *Builder {
	if m == nil {
		return b
	}
	if prev := b.skip; prev != nil {
		b.skip = func(name, loader string) bool {
			return prev(name, loader) || m(name, loader)
		}
	} else {
		b.skip = m
	}
	return b
}

// Transform appends a transformation step applied to units matching m.
// Steps run in contribution order.
func (b *Builder) Transform(m Matcher, t Transform) *Builder {
	b.steps = append(b.steps, step{match: m, apply: t})
	return b
}

// WithObserver registers an outcome observer.
func (b *Builder) WithObserver(o Observer) *Builder {
	b.observers = append(b.observers, o)
	return b
}

// Build freezes the configuration into a Pipeline.
func (b *Builder) Build() *Pipeline {
	return &Pipeline{
		strategy:  b.strategy,
		skip:      b.skip,
		steps:     b.steps,
		observers: b.observers,
		injected:  b.injected,
	}
}

// Pipeline is the assembled, immutable rewrite pipeline. It implements
// host.Transformer and is safe for unsynchronized concurrent use.
type Pipeline struct {
	strategy  RedefinitionStrategy
	skip      Matcher
	steps     []step
	observers []Observer
	injected  *ignore.InjectedRegistry
}

// Strategy returns the redefinition strategy the pipeline was built with.
func (p *Pipeline) Strategy() RedefinitionStrategy {
	return p.strategy
}

// Transform implements host.Transformer. Skipped units come back unchanged.
// A failing step is isolated: observers are notified, the step's change is
// discarded, and remaining steps still run against the unit's prior code.
func (p *Pipeline) Transform(unit host.CodeUnit) ([]byte, error) {
	if p.skip != nil && p.skip(unit.Name, unit.Loader) {
		return nil, nil
	}

	current := unit.Code
	changed := false
	for _, s := range p.steps {
		if s.match != nil && !s.match(unit.Name, unit.Loader) {
			continue
		}
		out, err := s.apply(host.CodeUnit{Name: unit.Name, Loader: unit.Loader, Code: current})
		if err != nil {
			p.notifyError(unit.Name, unit.Loader, err)
			continue
		}
		if out != nil {
			current = out
			changed = true
		}
	}

	if !changed {
		return nil, nil
	}
	p.notifyTransformation(unit.Name, unit.Loader)
	return current, nil
}

// InstallOn registers the pipeline as the host's transformer. This is the
// point after which the pipeline runs concurrently for the rest of the
// process lifetime.
func (p *Pipeline) InstallOn(inst host.Instrumentation) {
	inst.InstallTransformer(p)
}

// InjectHelper records a helper unit the pipeline injected in support of a
// rewrite, so later passes never re-instrument it.
func (p *Pipeline) InjectHelper(loader, name string) (ignore.InjectionToken, error) {
	if p.injected == nil {
		return ignore.InjectionToken{}, fmt.Errorf("pipeline has no injected-helper registry")
	}
	return p.injected.Record(loader, name), nil
}

func (p *Pipeline) notifyTransformation(name, loader string) {
	for _, o := range p.observers {
		o.OnTransformation(name, loader)
	}
}

func (p *Pipeline) notifyError(name, loader string, err error) {
	for _, o := range p.observers {
		o.OnError(name, loader, err)
	}
}
