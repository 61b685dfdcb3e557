package host

import (
	"errors"
	"testing"
)

type suffixTransformer struct {
	suffix string
	err    error
}

func (s suffixTransformer) Transform(unit CodeUnit) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append(unit.Code, []byte(s.suffix)...), nil
}

func TestSimulator_LoadRunsTransformerThenListeners(t *testing.T) {
	sim := NewSimulator()
	sim.InstallTransformer(suffixTransformer{suffix: "+t"})

	var seen []string
	sim.AddLoadListener(func(name string) { seen = append(seen, name) })

	out, err := sim.Load("corp.app.X", "main", []byte("code"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(out) != "code+t" {
		t.Errorf("Load = %q, want %q", out, "code+t")
	}
	if len(seen) != 1 || seen[0] != "corp.app.X" {
		t.Errorf("listeners saw %v, want [corp.app.X]", seen)
	}
	if got := sim.Code("corp.app.X", "main"); string(got) != "code+t" {
		t.Errorf("Code = %q, want transformed code stored", got)
	}
}

func TestSimulator_NilTransformResultKeepsOriginal(t *testing.T) {
	sim := NewSimulator()
	out, err := sim.Load("corp.app.X", "main", []byte("code"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "code" {
		t.Errorf("Load without transformer = %q, want original", out)
	}
}

func TestSimulator_TransformErrorFailsLoad(t *testing.T) {
	boom := errors.New("boom")
	sim := NewSimulator()
	sim.InstallTransformer(suffixTransformer{err: boom})

	if _, err := sim.Load("corp.app.X", "main", []byte("code")); !errors.Is(err, boom) {
		t.Errorf("Load error = %v, want boom", err)
	}
	if len(sim.LoadedUnits()) != 0 {
		t.Error("failed load must not be recorded")
	}
}

func TestSimulator_Retransform(t *testing.T) {
	sim := NewSimulator()
	sim.InstallTransformer(suffixTransformer{suffix: "+t"})

	if _, err := sim.Load("corp.app.X", "main", []byte("code")); err != nil {
		t.Fatal(err)
	}
	if err := sim.Retransform(sim.LoadedUnits()); err != nil {
		t.Fatalf("Retransform failed: %v", err)
	}
	if got := sim.Code("corp.app.X", "main"); string(got) != "code+t+t" {
		t.Errorf("Code after retransform = %q, want %q", got, "code+t+t")
	}
}

func TestSimulator_LoggingHazard(t *testing.T) {
	sim := NewSimulator()
	if unit, hazardous := sim.LoggingHazard(); hazardous || unit != "" {
		t.Errorf("LoggingHazard = (%q, %v), want none by default", unit, hazardous)
	}
	sim.SetLoggingHazard("corp.logging.LogManager", true)
	unit, hazardous := sim.LoggingHazard()
	if !hazardous || unit != "corp.logging.LogManager" {
		t.Errorf("LoggingHazard = (%q, %v), want configured hazard", unit, hazardous)
	}
}
