package extension

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry errors.
var (
	ErrNilExtension  = errors.New("extension is nil")
	ErrEmptyName     = errors.New("extension name must be non-empty")
	ErrDuplicateName = errors.New("extension name already registered")
)

// Registry holds the known extension implementations. All registration
// happens before Install; discovery afterwards is read-only and the ordered
// views it hands out are stable across calls, so every capability runs its
// extensions in the same order on every invocation.
type Registry struct {
	mu     sync.Mutex
	byName map[string]bool
	exts   []Extension
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]bool)}
}

// Register adds one extension. A malformed registration fails alone: the
// caller logs it and the registry keeps the rest.
func (r *Registry) Register(ext Extension) error {
	if ext == nil {
		return ErrNilExtension
	}
	name := ext.Name()
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byName[name] {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	r.byName[name] = true
	r.exts = append(r.exts, ext)
	return nil
}

// snapshot returns the registered extensions sorted by name, which makes
// every downstream ordering deterministic across runs regardless of
// registration order.
func (r *Registry) snapshot() []Extension {
	r.mu.Lock()
	out := make([]Extension, len(r.exts))
	copy(out, r.exts)
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name() < out[j].Name()
	})
	return out
}

// Ordered returns every registered extension implementing T, stably sorted
// by Priority (lower first), ties broken alphabetically by Name.
func Ordered[T Extension](r *Registry) []T {
	snap := r.snapshot()
	sort.SliceStable(snap, func(i, j int) bool {
		return snap[i].Priority() < snap[j].Priority()
	})

	var out []T
	for _, e := range snap {
		if t, ok := e.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// Unordered returns every registered extension implementing T in
// deterministic (alphabetical by Name) order, ignoring Priority.
func Unordered[T Extension](r *Registry) []T {
	var out []T
	for _, e := range r.snapshot() {
		if t, ok := e.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
