package ignore

import (
	"sync"

	"github.com/google/uuid"
)

// InjectionToken identifies a single helper injection event.
type InjectionToken struct {
	ID     uuid.UUID
	Loader string
	Name   string
}

// InjectedRegistry tracks code units injected by the agent's helper-injection
// mechanism. Injected helper names are not known ahead of time, so exclusion
// is by recorded identity rather than by name pattern.
//
// Record is called whenever the rewrite pipeline injects a helper, which can
// happen at any point in the process lifetime, so the registry is the one
// piece of ignore state that stays mutable after attach. Reads vastly
// outnumber writes; an RWMutex keeps the loading path cheap.
type InjectedRegistry struct {
	mu       sync.RWMutex
	byLoader map[string]map[string]InjectionToken
}

// NewInjectedRegistry returns an empty registry.
func NewInjectedRegistry() *InjectedRegistry {
	return &InjectedRegistry{
		byLoader: make(map[string]map[string]InjectionToken),
	}
}

// Record registers an injected helper and returns its token. Recording the
// same (loader, name) twice returns the original token.
func (r *InjectedRegistry) Record(loader, name string) InjectionToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	units := r.byLoader[loader]
	if units == nil {
		units = make(map[string]InjectionToken)
		r.byLoader[loader] = units
	}
	if tok, ok := units[name]; ok {
		return tok
	}
	tok := InjectionToken{ID: uuid.New(), Loader: loader, Name: name}
	units[name] = tok
	return tok
}

// IsInjected reports whether the unit was recorded as an injected helper.
func (r *InjectedRegistry) IsInjected(loader, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byLoader[loader][name]
	return ok
}

// Tokens returns a snapshot of all recorded injections, for diagnostics.
func (r *InjectedRegistry) Tokens() []InjectionToken {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []InjectionToken
	for _, units := range r.byLoader {
		for _, tok := range units {
			out = append(out, tok)
		}
	}
	return out
}
