package loadhook

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/attachd/internal/logging"
)

func TestRegistry_FiresOncePerLoad(t *testing.T) {
	r := NewRegistry(logging.Nop())

	calls := 0
	r.Register("corp.logging.LogManager", func() { calls++ })

	r.OnUnitLoaded("corp.logging.LogManager")
	r.OnUnitLoaded("corp.logging.LogManager")

	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
	if got := r.Pending("corp.logging.LogManager"); got != 0 {
		t.Errorf("Pending = %d, want 0", got)
	}
}

func TestRegistry_RegistrationOrder(t *testing.T) {
	r := NewRegistry(logging.Nop())

	var order []int
	r.Register("unit", func() { order = append(order, 1) })
	r.Register("unit", func() { order = append(order, 2) })
	r.Register("unit", func() { order = append(order, 3) })

	r.OnUnitLoaded("unit")

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("callbacks ran in order %v, want [1 2 3]", order)
	}
}

func TestRegistry_ExactNameMatch(t *testing.T) {
	r := NewRegistry(logging.Nop())

	called := false
	r.Register("corp.app.Service", func() { called = true })

	r.OnUnitLoaded("corp.app.ServiceImpl")
	r.OnUnitLoaded("corp.app")
	if called {
		t.Error("callback fired for a non-exact name")
	}

	r.OnUnitLoaded("corp.app.Service")
	if !called {
		t.Error("callback did not fire for exact name")
	}
}

func TestRegistry_RegisterAfterLoadNeverFires(t *testing.T) {
	r := NewRegistry(logging.Nop())
	r.OnUnitLoaded("unit")

	called := false
	r.Register("unit", func() { called = true })
	if called {
		t.Error("registration after load must not fire retroactively")
	}
	if got := r.Pending("unit"); got != 1 {
		t.Errorf("Pending = %d, want 1", got)
	}
}

func TestRegistry_ReentrantRegister(t *testing.T) {
	r := NewRegistry(logging.Nop())

	nested := false
	r.Register("unit", func() {
		// Registering from inside a firing callback must not deadlock, and
		// the nested callback waits for the next load of that name.
		r.Register("unit", func() { nested = true })
	})

	r.OnUnitLoaded("unit")
	if nested {
		t.Fatal("nested callback fired during the same load")
	}
	r.OnUnitLoaded("unit")
	if !nested {
		t.Error("nested callback did not fire on the next load")
	}
}

func TestRegistry_PanicIsolated(t *testing.T) {
	log := logging.NewTestLogger()
	r := NewRegistry(log.Logger)

	second := false
	r.Register("unit", func() { panic("boom") })
	r.Register("unit", func() { second = true })

	r.OnUnitLoaded("unit")

	if !second {
		t.Error("panic in one callback must not stop the rest")
	}
	log.AssertLogged(t, zapcore.ErrorLevel, "load callback panicked")
}
