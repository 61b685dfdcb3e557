// Package loadhook provides a name-keyed, fire-once callback registry driven
// by the host's code-loading pipeline.
//
// Callbacks registered for a unit name run exactly once, synchronously, on
// the goroutine that completed loading a unit with that exact name. The
// registry is usable as a synchronization primitive from inside the loading
// path itself: registering from within a firing callback must not deadlock.
package loadhook

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/attachd/internal/logging"
)

// Registry maps exact unit names to ordered callback queues.
type Registry struct {
	mu        sync.Mutex
	callbacks map[string][]func()
	log       *logging.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		callbacks: make(map[string][]func()),
		log:       log,
	}
}

// Register queues fn to run when a unit with exactly the given name finishes
// loading. Multiple registrations for one name run in registration order.
// Registering after that name has already been observed never fires fn
// retroactively.
//
// fn runs inside the loading hot path; long-running or load-triggering work
// must be handed off to another goroutine (see the deferred listener dispatch
// in pkg/agent).
func (r *Registry) Register(name string, fn func()) {
	r.mu.Lock()
	r.callbacks[name] = append(r.callbacks[name], fn)
	r.mu.Unlock()
}

// OnUnitLoaded fires and discards the callback queue for name, if any.
// The queue is removed under the lock and invoked outside it, so a callback
// may call Register (even for the same name) without deadlocking. A panic in
// one callback is isolated and logged; remaining callbacks and the loading
// pipeline proceed.
func (r *Registry) OnUnitLoaded(name string) {
	r.mu.Lock()
	queue, ok := r.callbacks[name]
	if ok {
		delete(r.callbacks, name)
	}
	r.mu.Unlock()

	for _, fn := range queue {
		r.invoke(name, fn)
	}
}

func (r *Registry) invoke(name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error(context.Background(), "load callback panicked",
				zap.String("unit", name),
				zap.Any("panic", rec),
			)
		}
	}()
	fn()
}

// Pending returns the number of callbacks still waiting for name, for tests
// and diagnostics.
func (r *Registry) Pending(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.callbacks[name])
}
