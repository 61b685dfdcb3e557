// Package agent orchestrates attachment: it configures telemetry, runs the
// registered extensions in order, assembles the rewrite pipeline, installs it
// on the host, and dispatches post-attach listeners either synchronously or
// deferred behind the host's logging hazard.
//
// Install runs exactly once, single-threaded, on the attaching goroutine.
// Everything it hands back is safe for concurrent use afterwards.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/attachd/internal/loadhook"
	"github.com/fyrsmithlabs/attachd/internal/logging"
	"github.com/fyrsmithlabs/attachd/internal/redefine"
	"github.com/fyrsmithlabs/attachd/internal/track"
	"github.com/fyrsmithlabs/attachd/pkg/config"
	"github.com/fyrsmithlabs/attachd/pkg/extension"
	"github.com/fyrsmithlabs/attachd/pkg/host"
	"github.com/fyrsmithlabs/attachd/pkg/ignore"
	"github.com/fyrsmithlabs/attachd/pkg/pipeline"
	"github.com/fyrsmithlabs/attachd/pkg/telemetry"
)

// selfPackagePrefix covers the agent's own code. It is never instrumented and
// always stays visible to bootstrap-level loading.
const selfPackagePrefix = "github.com/fyrsmithlabs/attachd"

// Option customizes Install.
type Option func(*options)

type options struct {
	logger          *logging.Logger
	telemetryOpts   []telemetry.Option
	agentLoader     string
	extensionLoader string
}

// WithTelemetryOptions forwards options to the telemetry SDK constructor,
// for example an in-memory exporter in tests.
func WithTelemetryOptions(opts ...telemetry.Option) Option {
	return func(o *options) {
		o.telemetryOpts = append(o.telemetryOpts, opts...)
	}
}

// WithLoaders names the isolated loaders the agent and its extensions run
// under, so redefinition passes and the pipeline skip rule exclude them.
func WithLoaders(agentLoader, extensionLoader string) Option {
	return func(o *options) {
		o.agentLoader = agentLoader
		o.extensionLoader = extensionLoader
	}
}

// withLogger overrides the configured logger. Tests use it to observe output.
func withLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Installed is the handle Install returns. Its methods are safe for
// concurrent use.
type Installed struct {
	enabled bool

	log           *logging.Logger
	sdk           *telemetry.Telemetry
	pipeline      *pipeline.Pipeline
	matcher       *ignore.Matcher
	injected      *ignore.InjectedRegistry
	callbacks     *loadhook.Registry
	selfExclusion *redefine.Filter
	bootstrap     []string

	lifecycle lifecycle
}

// Install attaches the agent to the host. It runs the attach sequence once:
// telemetry SDK, duration-tracking tracer wrapper, bootstrap visibility,
// pre-attach hooks, ignore rules, pipeline assembly and installation, then
// post-attach listener dispatch.
//
// A failing pre-attach hook aborts the whole attach. Failures in pipeline
// contributors and post-attach listeners are isolated and logged; attachment
// continues without them.
func Install(ctx context.Context, inst host.Instrumentation, reg *extension.Registry, cfg *config.Config, opts ...Option) (*Installed, error) {
	if inst == nil {
		return nil, errors.New("agent: host instrumentation is nil")
	}
	if reg == nil {
		reg = extension.NewRegistry()
	}
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agent: invalid config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if !cfg.IsEnabled() {
		log := o.logger
		if log == nil {
			var err error
			log, err = logging.New(&cfg.Logging, nil)
			if err != nil {
				// No SDK exists on the disabled path, so an OTEL-only output
				// has nothing to bridge to. Stay quiet rather than fail.
				log = logging.Nop()
			}
		}
		log = log.Named("agent")
		log.Info(ctx, "agent disabled by config, not attaching")
		return &Installed{enabled: false, log: log}, nil
	}

	// Telemetry comes up first so every later step can report through it and
	// the logger has a provider for its OTEL output. The stop-side span
	// processor must be on the provider before any span can end, so it rides
	// in as a construction option.
	stopEvents := track.EventMapping(cfg.TrackStopEvents)
	telOpts := append([]telemetry.Option(nil), o.telemetryOpts...)
	if len(stopEvents) > 0 {
		telOpts = append(telOpts, telemetry.WithSpanProcessor(track.NewSpanProcessor(stopEvents)))
	}
	sdk, err := telemetry.New(ctx, &cfg.Telemetry, telOpts...)
	if err != nil {
		return nil, fmt.Errorf("agent: telemetry: %w", err)
	}

	log := o.logger
	if log == nil {
		var lerr error
		log, lerr = logging.New(&cfg.Logging, sdk.LoggerProvider())
		if lerr != nil {
			return nil, fmt.Errorf("agent: logger: %w", lerr)
		}
	}
	log = log.Named("agent")

	// The duration-tracking wrapper goes between the SDK provider and the
	// global registration, so every tracer handed out afterwards binds start
	// timestamps into the ambient carrier.
	startEvents := track.EventMapping(cfg.TrackStartEvents)
	if tp := sdk.TracerProvider(); tp != nil {
		var publish oteltrace.TracerProvider = tp
		if len(startEvents) > 0 {
			publish = track.NewTracerProvider(tp, startEvents)
		}
		otel.SetTracerProvider(publish)
	} else if len(startEvents) > 0 {
		log.Warn(ctx, "telemetry provider unavailable, start-event tracking disabled")
	}

	bootstrap := extension.NewBootstrapBuilder()
	bootstrap.Add(selfPackagePrefix)
	for _, c := range extension.Ordered[extension.BootstrapConfigurer](reg) {
		c.ConfigureBootstrap(bootstrap, cfg)
	}

	for _, h := range extension.Ordered[extension.PreAttachHook](reg) {
		if err := h.BeforeAttach(ctx, sdk); err != nil {
			return nil, fmt.Errorf("agent: pre-attach hook %q: %w", h.Name(), err)
		}
	}

	injected := ignore.NewInjectedRegistry()
	ib := ignore.NewBuilder()
	ib.IgnoreType(selfPackagePrefix)
	for _, c := range extension.Ordered[extension.IgnoreConfigurer](reg) {
		c.Configure(ib, cfg)
	}
	matcher := ib.Build(injected)
	selfExclusion := redefine.NewFilter(o.agentLoader, o.extensionLoader, injected)

	metrics, err := newSelfMetrics(sdk)
	if err != nil {
		log.Warn(ctx, "self metrics unavailable", zap.Error(err))
		metrics = nil
	}

	pb := pipeline.NewBuilder().WithInjectedRegistry(injected)
	pb.Ignore(matcher.ShouldIgnore)
	pb.Ignore(selfExclusion.Excluded)
	if metrics != nil {
		pb.WithObserver(metrics)
	}
	if log.Enabled(zapcore.DebugLevel) {
		pb.WithObserver(&loggingObserver{log: log})
	}

	contributors := 0
	for _, c := range extension.Ordered[extension.PipelineContributor](reg) {
		if err := extendPipeline(c, pb, cfg); err != nil {
			log.Error(ctx, "pipeline contributor failed",
				zap.String("extension", c.Name()),
				zap.Error(err),
			)
			continue
		}
		contributors++
	}

	p := pb.Build()
	p.InstallOn(inst)

	callbacks := loadhook.NewRegistry(log)
	inst.AddLoadListener(func(name string) {
		if metrics != nil {
			metrics.unitLoaded()
		}
		callbacks.OnUnitLoaded(name)
	})

	in := &Installed{
		enabled:       true,
		log:           log,
		sdk:           sdk,
		pipeline:      p,
		matcher:       matcher,
		injected:      injected,
		callbacks:     callbacks,
		selfExclusion: selfExclusion,
		bootstrap:     bootstrap.Build(),
	}
	in.dispatchListeners(ctx, inst, extension.Ordered[extension.PostAttachListener](reg), cfg)

	log.Info(ctx, "agent attached",
		zap.Int("pipeline_contributors", contributors),
		zap.String("listener_state", in.ListenerState().String()),
	)
	return in, nil
}

// extendPipeline invokes one contributor, converting a panic into an error so
// a misbehaving extension cannot take attachment down with it.
func extendPipeline(c extension.PipelineContributor, b *pipeline.Builder, cfg *config.Config) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return c.Extend(b, cfg)
}

// dispatchListeners runs post-attach listeners synchronously on the attaching
// goroutine, unless the host reports a logging hazard: running listeners now
// could initialize the host's logging subsystem before the application had
// its say. In that case dispatch is deferred to a dedicated worker goroutine
// triggered by the hazard unit's own load.
func (in *Installed) dispatchListeners(ctx context.Context, inst host.Instrumentation, listeners []extension.PostAttachListener, cfg *config.Config) {
	hazardUnit, hazardous := inst.LoggingHazard()
	if cfg.ForceSynchronousListeners || !hazardous || hazardUnit == "" {
		in.lifecycle.transition(StatePending, StateRunningSync)
		in.runListeners(ctx, listeners)
		in.lifecycle.transition(StateRunningSync, StateDone)
		return
	}

	in.lifecycle.transition(StatePending, StateWaitingForTrigger)

	// The load callback fires inside the loading hot path and must not run
	// listener work there. It only signals; the worker goroutine does the
	// listeners on its own time, best-effort.
	trigger := make(chan struct{}, 1)
	go func() {
		<-trigger
		if !in.lifecycle.transition(StateWaitingForTrigger, StateRunningAsync) {
			return
		}
		in.runListeners(context.Background(), listeners)
		in.lifecycle.transition(StateRunningAsync, StateDone)
	}()
	in.callbacks.Register(hazardUnit, func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	})

	in.log.Debug(ctx, "post-attach listeners deferred",
		zap.String("trigger_unit", hazardUnit),
		zap.Int("listeners", len(listeners)),
	)
}

func (in *Installed) runListeners(ctx context.Context, listeners []extension.PostAttachListener) {
	for _, l := range listeners {
		if err := in.callListener(ctx, l); err != nil {
			in.log.Error(ctx, "post-attach listener failed",
				zap.String("extension", l.Name()),
				zap.Error(err),
			)
		}
	}
}

func (in *Installed) callListener(ctx context.Context, l extension.PostAttachListener) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return l.AfterAttach(ctx, in.sdk)
}

// Enabled reports whether Install actually attached anything.
func (in *Installed) Enabled() bool {
	return in.enabled
}

// SDK returns the telemetry handle extensions were given.
func (in *Installed) SDK() *telemetry.Telemetry {
	return in.sdk
}

// ListenerState reports how far post-attach listener dispatch has progressed.
// A disabled install never leaves StatePending.
func (in *Installed) ListenerState() ListenerState {
	return in.lifecycle.current()
}

// RegisterLoadCallback queues fn to run once when a unit with exactly the
// given name finishes loading.
func (in *Installed) RegisterLoadCallback(name string, fn func()) {
	if in.callbacks == nil {
		return
	}
	in.callbacks.Register(name, fn)
}

// ShouldIgnore mirrors the pipeline's skip decision for the named unit.
func (in *Installed) ShouldIgnore(name, loader string) bool {
	if in.matcher != nil && in.matcher.ShouldIgnore(name, loader) {
		return true
	}
	return in.selfExclusion != nil && in.selfExclusion.Excluded(name, loader)
}

// EligibleForRedefinition filters a batch of loaded units down to those a
// re-instrumentation pass may touch, preserving order.
func (in *Installed) EligibleForRedefinition(batch []host.LoadedUnit) []host.LoadedUnit {
	if in.selfExclusion == nil {
		return batch
	}
	return in.selfExclusion.Eligible(batch)
}

// BootstrapPrefixes returns the package prefixes that must stay visible to
// bootstrap-level loading, in contribution order.
func (in *Installed) BootstrapPrefixes() []string {
	out := make([]string, len(in.bootstrap))
	copy(out, in.bootstrap)
	return out
}

// Pipeline returns the installed rewrite pipeline, or nil when disabled.
func (in *Installed) Pipeline() *pipeline.Pipeline {
	return in.pipeline
}

// ForceFlushAll exports all pending telemetry from every provider under one
// timeout.
func (in *Installed) ForceFlushAll(timeout time.Duration) error {
	if in.sdk == nil {
		return nil
	}
	return in.sdk.ForceFlushAll(timeout)
}

// Shutdown flushes and stops telemetry and the agent log.
func (in *Installed) Shutdown(ctx context.Context) error {
	var errs []error
	if in.sdk != nil {
		if err := in.sdk.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if in.log != nil {
		if err := in.log.Sync(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
