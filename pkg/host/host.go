// Package host defines the contract between the agent and the process it
// attaches to.
//
// The host owns the code-loading pipeline: the subsystem that brings a named
// code unit into executable form. The agent registers exactly one transformer
// and one load-completion listener on it at attach time; everything after
// that is driven by the host, concurrently, for the rest of the process
// lifetime.
package host

// CodeUnit is a code unit presented to the rewrite pipeline before it
// becomes executable.
type CodeUnit struct {
	// Name is the fully qualified, dot/slash-segmented unit name.
	Name string
	// Loader identifies the loader bringing the unit in. Empty for
	// bootstrap-level loading.
	Loader string
	// Code is the unit's raw representation.
	Code []byte
}

// LoadedUnit describes an already-loaded unit proposed for a later
// re-instrumentation pass.
type LoadedUnit struct {
	Name   string
	Loader string
}

// Transformer rewrites a unit's code. Returning a nil slice means the unit
// is left unchanged. Transformers are invoked concurrently from arbitrary
// loading goroutines and must be safe for that.
type Transformer interface {
	Transform(unit CodeUnit) ([]byte, error)
}

// Instrumentation is the host's code-loading hook.
type Instrumentation interface {
	// InstallTransformer registers the rewrite pipeline. The host invokes it
	// for every unit it loads from this point on.
	InstallTransformer(t Transformer)

	// AddLoadListener registers a sink notified with the unit name after
	// every completed load. Listeners run inside the loading path and must
	// return quickly.
	AddLoadListener(fn func(name string))

	// LoadedUnits returns the units the host has already loaded, as
	// candidates for a retransformation pass.
	LoadedUnits() []LoadedUnit

	// Retransform re-runs the installed transformer over the given units.
	Retransform(units []LoadedUnit) error

	// LoggingHazard reports whether running arbitrary listener code now could
	// deadlock the host's logging subsystem mid-initialization. When
	// hazardous, unitName names the unit whose completed load signals that
	// the hazard has passed.
	LoggingHazard() (unitName string, hazardous bool)
}
