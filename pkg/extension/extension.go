// Package extension defines the pluggable capabilities the agent coordinates
// at attach time.
//
// Extensions are registered explicitly, not discovered by reflection: each
// implementation is handed to a Registry before Install runs, and ordering is
// an explicit Priority field instead of registration accident. One value may
// implement several capability interfaces; it is invoked once per capability.
package extension

import (
	"context"

	"github.com/fyrsmithlabs/attachd/pkg/config"
	"github.com/fyrsmithlabs/attachd/pkg/ignore"
	"github.com/fyrsmithlabs/attachd/pkg/pipeline"
	"github.com/fyrsmithlabs/attachd/pkg/telemetry"
)

// Extension is the common surface of every attach-time capability.
type Extension interface {
	// Name identifies the extension in logs and error reports. Must be
	// non-empty and unique within a registry.
	Name() string
	// Priority orders extensions of the same capability: lower runs first,
	// ties broken alphabetically by Name.
	Priority() int
}

// PreAttachHook runs before the rewrite pipeline is assembled. A returned
// error is fatal: pre-attach hooks assert invariants the rest of attachment
// depends on, so their failure aborts the whole attach sequence.
type PreAttachHook interface {
	Extension
	BeforeAttach(ctx context.Context, sdk *telemetry.Telemetry) error
}

// PostAttachListener runs after the pipeline is installed, either
// synchronously on the attaching goroutine or deferred to a dedicated
// worker. A returned error is isolated and logged; remaining listeners
// still run.
type PostAttachListener interface {
	Extension
	AfterAttach(ctx context.Context, sdk *telemetry.Telemetry) error
}

// PipelineContributor folds configuration into the rewrite pipeline. A
// returned error (or panic) is isolated and logged; attachment continues
// with the remaining contributors.
type PipelineContributor interface {
	Extension
	Extend(b *pipeline.Builder, cfg *config.Config) error
}

// IgnoreConfigurer contributes name and loader ignore rules.
type IgnoreConfigurer interface {
	Extension
	Configure(b *ignore.Builder, cfg *config.Config)
}

// BootstrapConfigurer contributes package prefixes that must stay visible to
// bootstrap-level loading.
type BootstrapConfigurer interface {
	Extension
	ConfigureBootstrap(b *BootstrapBuilder, cfg *config.Config)
}

// BootstrapBuilder collects bootstrap-visibility package prefixes.
type BootstrapBuilder struct {
	prefixes []string
	seen     map[string]bool
}

// NewBootstrapBuilder returns an empty builder.
func NewBootstrapBuilder() *BootstrapBuilder {
	return &BootstrapBuilder{seen: make(map[string]bool)}
}

// Add appends a package prefix, ignoring duplicates and empty strings.
func (b *BootstrapBuilder) Add(prefix string) *BootstrapBuilder {
	if prefix == "" || b.seen[prefix] {
		return b
	}
	b.seen[prefix] = true
	b.prefixes = append(b.prefixes, prefix)
	return b
}

// Build returns the collected prefixes in contribution order.
func (b *BootstrapBuilder) Build() []string {
	out := make([]string, len(b.prefixes))
	copy(out, b.prefixes)
	return out
}
