// Package ignore decides which code units are excluded from rewriting.
//
// Rules are collected into a Builder at attach time, frozen into a Matcher,
// and then read concurrently from the host's code-loading path without locks.
// A unit is ignored when its name matches the ignore trie, its loader matches
// the ignored-loader trie, or it was injected by the agent's own helper
// injection mechanism.
package ignore

// Builder accumulates ignore/allow rules before freezing.
//
// Rules use longest-matching-prefix semantics over dot/slash-segmented names:
// Ignore("a.b") + Allow("a.b.keep") ignores a.b.x but not a.b.keep.y.
// Builder is not safe for concurrent use; all rules are contributed on the
// single attaching goroutine.
type Builder struct {
	types   *trie
	loaders *trie
	frozen  bool
}

// NewBuilder returns an empty rule builder.
func NewBuilder() *Builder {
	return &Builder{
		types:   &trie{root: newTrieNode()},
		loaders: &trie{root: newTrieNode()},
	}
}

// IgnoreType marks a unit-name prefix as ignored.
func (b *Builder) IgnoreType(prefix string) *Builder {
	b.checkMutable()
	b.types.insert(prefix, true)
	return b
}

// AllowType marks a unit-name prefix as instrumentable, overriding any
// shorter ignored prefix.
func (b *Builder) AllowType(prefix string) *Builder {
	b.checkMutable()
	b.types.insert(prefix, false)
	return b
}

// IgnoreLoader marks a loader-identity prefix as ignored.
func (b *Builder) IgnoreLoader(prefix string) *Builder {
	b.checkMutable()
	b.loaders.insert(prefix, true)
	return b
}

// AllowLoader marks a loader-identity prefix as instrumentable.
func (b *Builder) AllowLoader(prefix string) *Builder {
	b.checkMutable()
	b.loaders.insert(prefix, false)
	return b
}

func (b *Builder) checkMutable() {
	if b.frozen {
		panic("ignore: builder mutated after Build")
	}
}

// Build freezes the accumulated rules into a Matcher. injected may be nil
// when no helper injection mechanism is in play. The Builder must not be
// mutated afterwards.
func (b *Builder) Build(injected *InjectedRegistry) *Matcher {
	b.frozen = true
	return &Matcher{
		types:    b.types,
		loaders:  b.loaders,
		injected: injected,
	}
}

// Matcher answers ignore queries against frozen rules. It is immutable and
// safe for concurrent use from any number of loading goroutines. ShouldIgnore
// performs only map walks over already-interned segments; it never triggers
// loading of further code.
type Matcher struct {
	types    *trie
	loaders  *trie
	injected *InjectedRegistry
}

// ShouldIgnore reports whether the named unit must be excluded from
// rewriting. loader may be empty for bootstrap-level loading, in which case
// only name rules and the injection registry apply.
func (m *Matcher) ShouldIgnore(name, loader string) bool {
	if m.injected != nil && m.injected.IsInjected(loader, name) {
		return true
	}
	if loader != "" {
		if ignored, ok := m.loaders.lookup(loader); ok && ignored {
			return true
		}
	}
	ignored, ok := m.types.lookup(name)
	return ok && ignored
}
