package pipeline

import (
	"errors"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/attachd/pkg/host"
	"github.com/fyrsmithlabs/attachd/pkg/ignore"
)

type recordingObserver struct {
	transformed []string
	failed      []string
	errs        []error
}

func (o *recordingObserver) OnTransformation(name, _ string) {
	o.transformed = append(o.transformed, name)
}

func (o *recordingObserver) OnError(name, _ string, err error) {
	o.failed = append(o.failed, name)
	o.errs = append(o.errs, err)
}

func prefixMatcher(prefix string) Matcher {
	return func(name, _ string) bool { return strings.HasPrefix(name, prefix) }
}

func appendTransform(suffix string) Transform {
	return func(unit host.CodeUnit) ([]byte, error) {
		return append(unit.Code, []byte(suffix)...), nil
	}
}

func TestPipeline_StepsRunInContributionOrder(t *testing.T) {
	p := NewBuilder().
		Transform(nil, appendTransform("+a")).
		Transform(nil, appendTransform("+b")).
		Build()

	out, err := p.Transform(host.CodeUnit{Name: "corp.app.X", Code: []byte("base")})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if string(out) != "base+a+b" {
		t.Errorf("Transform = %q, want %q", out, "base+a+b")
	}
}

func TestPipeline_SkipPredicatesCombineWithOR(t *testing.T) {
	p := NewBuilder().
		Ignore(prefixMatcher("corp.vendor")).
		Ignore(prefixMatcher("corp.internal")).
		Transform(nil, appendTransform("+x")).
		Build()

	tests := []struct {
		name    string
		skipped bool
	}{
		{"corp.vendor.Lib", true},
		{"corp.internal.Util", true},
		{"corp.app.Service", false},
	}
	for _, tt := range tests {
		out, err := p.Transform(host.CodeUnit{Name: tt.name, Code: []byte("c")})
		if err != nil {
			t.Fatalf("Transform(%s) failed: %v", tt.name, err)
		}
		if skipped := out == nil; skipped != tt.skipped {
			t.Errorf("Transform(%s) skipped = %v, want %v", tt.name, skipped, tt.skipped)
		}
	}
}

func TestPipeline_MatcherScopesStep(t *testing.T) {
	p := NewBuilder().
		Transform(prefixMatcher("corp.app"), appendTransform("+app")).
		Transform(prefixMatcher("corp.db"), appendTransform("+db")).
		Build()

	out, err := p.Transform(host.CodeUnit{Name: "corp.app.X", Code: []byte("c")})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "c+app" {
		t.Errorf("Transform = %q, want %q", out, "c+app")
	}
}

func TestPipeline_UnchangedUnitReturnsNil(t *testing.T) {
	p := NewBuilder().
		Transform(prefixMatcher("corp.db"), appendTransform("+db")).
		Build()

	out, err := p.Transform(host.CodeUnit{Name: "corp.app.X", Code: []byte("c")})
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Errorf("Transform = %q, want nil for an untouched unit", out)
	}
}

func TestPipeline_FailingStepIsolated(t *testing.T) {
	boom := errors.New("boom")
	obs := &recordingObserver{}
	p := NewBuilder().
		WithObserver(obs).
		Transform(nil, appendTransform("+a")).
		Transform(nil, func(host.CodeUnit) ([]byte, error) { return nil, boom }).
		Transform(nil, appendTransform("+c")).
		Build()

	out, err := p.Transform(host.CodeUnit{Name: "corp.app.X", Code: []byte("base")})
	if err != nil {
		t.Fatalf("a failing step must not fail the unit: %v", err)
	}
	if string(out) != "base+a+c" {
		t.Errorf("Transform = %q, want %q (failed step discarded)", out, "base+a+c")
	}

	if len(obs.failed) != 1 || obs.failed[0] != "corp.app.X" {
		t.Errorf("observer failed = %v, want one entry for corp.app.X", obs.failed)
	}
	if len(obs.errs) != 1 || !errors.Is(obs.errs[0], boom) {
		t.Errorf("observer errs = %v, want [boom]", obs.errs)
	}
	if len(obs.transformed) != 1 {
		t.Errorf("observer transformed = %v, want one entry", obs.transformed)
	}
}

func TestPipeline_FailingStepSeesPriorCode(t *testing.T) {
	var seen string
	p := NewBuilder().
		Transform(nil, appendTransform("+a")).
		Transform(nil, func(unit host.CodeUnit) ([]byte, error) {
			seen = string(unit.Code)
			return nil, errors.New("boom")
		}).
		Build()

	if _, err := p.Transform(host.CodeUnit{Name: "x", Code: []byte("base")}); err != nil {
		t.Fatal(err)
	}
	if seen != "base+a" {
		t.Errorf("failing step saw %q, want %q", seen, "base+a")
	}
}

func TestPipeline_DefaultStrategy(t *testing.T) {
	if got := NewBuilder().Build().Strategy(); got != RedefinitionRetransform {
		t.Errorf("default strategy = %v, want RedefinitionRetransform", got)
	}
	p := NewBuilder().WithRedefinitionStrategy(RedefinitionDisabled).Build()
	if got := p.Strategy(); got != RedefinitionDisabled {
		t.Errorf("strategy = %v, want RedefinitionDisabled", got)
	}
}

func TestPipeline_InjectHelper(t *testing.T) {
	reg := ignore.NewInjectedRegistry()
	p := NewBuilder().WithInjectedRegistry(reg).Build()

	tok, err := p.InjectHelper("corp.main", "corp.helper.Gen")
	if err != nil {
		t.Fatalf("InjectHelper failed: %v", err)
	}
	if tok.Name != "corp.helper.Gen" || tok.Loader != "corp.main" {
		t.Errorf("token = %+v, want loader/name echoed back", tok)
	}
	if !reg.IsInjected("corp.main", "corp.helper.Gen") {
		t.Error("injection not recorded in registry")
	}

	bare := NewBuilder().Build()
	if _, err := bare.InjectHelper("l", "n"); err == nil {
		t.Error("InjectHelper without a registry must fail")
	}
}
