package host

import (
	"fmt"
	"sync"
)

// Simulator is an in-memory Instrumentation implementation. It drives the
// installed transformer and load listeners exactly the way a real loading
// pipeline would: transform first, then notify, on the calling goroutine.
// Tests and the runnable example use it as the host process stand-in.
type Simulator struct {
	mu          sync.Mutex
	transformer Transformer
	listeners   []func(name string)
	loaded      []LoadedUnit
	code        map[string][]byte // keyed by loader + "\x00" + name

	hazardUnit string
	hazardous  bool
}

// NewSimulator returns a host simulator with no logging hazard.
func NewSimulator() *Simulator {
	return &Simulator{code: make(map[string][]byte)}
}

// SetLoggingHazard configures the hazard the next LoggingHazard call reports.
func (s *Simulator) SetLoggingHazard(unitName string, hazardous bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hazardUnit = unitName
	s.hazardous = hazardous
}

// InstallTransformer implements Instrumentation.
func (s *Simulator) InstallTransformer(t Transformer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transformer = t
}

// AddLoadListener implements Instrumentation.
func (s *Simulator) AddLoadListener(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// LoggingHazard implements Instrumentation.
func (s *Simulator) LoggingHazard() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hazardUnit, s.hazardous
}

// Load brings a unit through the simulated pipeline: the installed
// transformer runs first, then every load listener, all on the caller's
// goroutine. It returns the unit's final code.
func (s *Simulator) Load(name, loader string, code []byte) ([]byte, error) {
	s.mu.Lock()
	t := s.transformer
	listeners := make([]func(string), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	final := code
	if t != nil {
		rewritten, err := t.Transform(CodeUnit{Name: name, Loader: loader, Code: code})
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", name, err)
		}
		if rewritten != nil {
			final = rewritten
		}
	}

	s.mu.Lock()
	s.loaded = append(s.loaded, LoadedUnit{Name: name, Loader: loader})
	s.code[loader+"\x00"+name] = final
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(name)
	}
	return final, nil
}

// LoadedUnits implements Instrumentation.
func (s *Simulator) LoadedUnits() []LoadedUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LoadedUnit, len(s.loaded))
	copy(out, s.loaded)
	return out
}

// Retransform implements Instrumentation.
func (s *Simulator) Retransform(units []LoadedUnit) error {
	s.mu.Lock()
	t := s.transformer
	s.mu.Unlock()
	if t == nil {
		return fmt.Errorf("no transformer installed")
	}

	for _, u := range units {
		s.mu.Lock()
		code := s.code[u.Loader+"\x00"+u.Name]
		s.mu.Unlock()

		rewritten, err := t.Transform(CodeUnit{Name: u.Name, Loader: u.Loader, Code: code})
		if err != nil {
			return fmt.Errorf("retransform %s: %w", u.Name, err)
		}
		if rewritten != nil {
			s.mu.Lock()
			s.code[u.Loader+"\x00"+u.Name] = rewritten
			s.mu.Unlock()
		}
	}
	return nil
}

// Code returns the current code for a loaded unit, for assertions.
func (s *Simulator) Code(name, loader string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code[loader+"\x00"+name]
}
