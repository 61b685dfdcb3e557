package redefine

import (
	"testing"

	"github.com/fyrsmithlabs/attachd/pkg/host"
	"github.com/fyrsmithlabs/attachd/pkg/ignore"
	"github.com/fyrsmithlabs/attachd/pkg/pipeline"
)

func TestFilter_Eligible(t *testing.T) {
	injected := ignore.NewInjectedRegistry()
	injected.Record("corp.main", "corp.helper.Gen")

	f := NewFilter("attachd.loader", "attachd.extensions", injected)

	batch := []host.LoadedUnit{
		{Name: "corp.app.Service", Loader: "corp.main"},
		{Name: "attachd.internal.Thing", Loader: "attachd.loader"},
		{Name: "ext.Instrument", Loader: "attachd.extensions"},
		{Name: pipeline.GeneratedAccessorPrefix + ".Field17", Loader: "corp.main"},
		{Name: "corp.helper.Gen", Loader: "corp.main"},
		{Name: "corp.db.Pool", Loader: "corp.main"},
	}

	got := f.Eligible(batch)
	want := []string{"corp.app.Service", "corp.db.Pool"}
	if len(got) != len(want) {
		t.Fatalf("Eligible returned %d units, want %d: %v", len(got), len(want), got)
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("Eligible[%d] = %q, want %q (order must be preserved)", i, got[i].Name, name)
		}
	}
}

func TestFilter_EmptyLoaderNeverMatchesLoaders(t *testing.T) {
	f := NewFilter("", "", nil)
	if f.Excluded("corp.app.Service", "") {
		t.Error("bootstrap-loaded unit must not match an empty loader exclusion")
	}
}

func TestFilter_NilInjectedRegistry(t *testing.T) {
	f := NewFilter("agent", "ext", nil)
	if f.Excluded("corp.app.Service", "corp.main") {
		t.Error("unit should be eligible with no injected registry")
	}
	if !f.Excluded("corp.app.Service", "agent") {
		t.Error("agent loader must be excluded")
	}
}
