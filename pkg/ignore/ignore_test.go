package ignore

import (
	"fmt"
	"sync"
	"testing"
)

func TestMatcher_LongestPrefixWins(t *testing.T) {
	b := NewBuilder()
	b.IgnoreType("corp.vendor")
	b.AllowType("corp.vendor.sdk")
	b.IgnoreType("corp.vendor.sdk.internal")
	m := b.Build(nil)

	tests := []struct {
		name string
		want bool
	}{
		{"corp.vendor.json.Parser", true},
		{"corp.vendor", true},
		{"corp.vendor.sdk.Client", false},
		{"corp.vendor.sdk", false},
		{"corp.vendor.sdk.internal.Impl", true},
		{"corp.app.Service", false},
		{"corp", false},
		{"corp.vendorish.Thing", false}, // segment match, not string prefix
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.ShouldIgnore(tt.name, "main"); got != tt.want {
				t.Errorf("ShouldIgnore(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestMatcher_SlashSegments(t *testing.T) {
	b := NewBuilder()
	b.IgnoreType("corp/vendor")
	m := b.Build(nil)

	if !m.ShouldIgnore("corp/vendor/json/Parser", "") {
		t.Error("slash-segmented name should match slash-segmented rule")
	}
	if !m.ShouldIgnore("corp.vendor.json.Parser", "") {
		t.Error("dot and slash separators are interchangeable")
	}
}

func TestMatcher_LoaderRules(t *testing.T) {
	b := NewBuilder()
	b.IgnoreLoader("corp.plugin")
	b.AllowLoader("corp.plugin.trusted")
	m := b.Build(nil)

	if !m.ShouldIgnore("any.Unit", "corp.plugin.sandbox") {
		t.Error("unit from ignored loader should be ignored regardless of name")
	}
	if m.ShouldIgnore("any.Unit", "corp.plugin.trusted") {
		t.Error("allowed loader overrides shorter ignored prefix")
	}
	// Empty loader means bootstrap-level loading: loader rules do not apply.
	if m.ShouldIgnore("any.Unit", "") {
		t.Error("loader rules must not apply to empty loader")
	}
}

func TestMatcher_LaterRuleOverwrites(t *testing.T) {
	b := NewBuilder()
	b.IgnoreType("corp.app")
	b.AllowType("corp.app")
	m := b.Build(nil)

	if m.ShouldIgnore("corp.app.Service", "") {
		t.Error("later Allow at the same prefix must overwrite earlier Ignore")
	}
}

func TestMatcher_InjectedUnits(t *testing.T) {
	reg := NewInjectedRegistry()
	m := NewBuilder().Build(reg)

	if m.ShouldIgnore("corp.helper.Generated", "corp.main") {
		t.Fatal("unit should not be ignored before it is recorded")
	}
	reg.Record("corp.main", "corp.helper.Generated")
	if !m.ShouldIgnore("corp.helper.Generated", "corp.main") {
		t.Error("recorded injected unit must be ignored")
	}
	if m.ShouldIgnore("corp.helper.Generated", "corp.other") {
		t.Error("injection identity includes the loader")
	}
}

func TestBuilder_MutationAfterBuildPanics(t *testing.T) {
	b := NewBuilder()
	b.Build(nil)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on mutation after Build")
		}
	}()
	b.IgnoreType("corp.late")
}

func TestMatcher_ConcurrentLookups(t *testing.T) {
	b := NewBuilder()
	for i := 0; i < 100; i++ {
		b.IgnoreType(fmt.Sprintf("corp.pkg%d", i))
	}
	m := b.Build(nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				name := fmt.Sprintf("corp.pkg%d.Unit", i%100)
				if !m.ShouldIgnore(name, "main") {
					t.Errorf("ShouldIgnore(%q) = false, want true", name)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestInjectedRegistry_RecordIdempotent(t *testing.T) {
	reg := NewInjectedRegistry()

	tok1 := reg.Record("loader", "corp.helper.A")
	tok2 := reg.Record("loader", "corp.helper.A")
	if tok1.ID != tok2.ID {
		t.Error("re-recording the same unit must return the original token")
	}

	tok3 := reg.Record("loader", "corp.helper.B")
	if tok3.ID == tok1.ID {
		t.Error("distinct units must get distinct tokens")
	}
	if got := len(reg.Tokens()); got != 2 {
		t.Errorf("Tokens() = %d entries, want 2", got)
	}
}
