package logging

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/log/logtest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/attachd/pkg/config"
)

func TestNew_RequiresAnOutput(t *testing.T) {
	cfg := &config.LoggingConfig{
		Level:  zapcore.InfoLevel,
		Format: "json",
		// No outputs enabled and no OTEL provider.
	}
	if _, err := New(cfg, nil); err == nil {
		t.Error("New() succeeded with no outputs")
	}
}

func TestNew_StdoutOnly(t *testing.T) {
	cfg := &config.LoggingConfig{
		Level:  zapcore.DebugLevel,
		Format: "console",
		Output: config.OutputConfig{Stdout: true},
		Fields: map[string]string{"service": "attachd"},
	}
	log, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !log.Enabled(zapcore.DebugLevel) {
		t.Error("debug level should be enabled")
	}
	log.Debug(context.Background(), "attach step")
	if err := log.Sync(); err != nil {
		t.Errorf("Sync() error = %v", err)
	}
}

func TestNew_OTELOnly(t *testing.T) {
	rec := logtest.NewRecorder()
	cfg := &config.LoggingConfig{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Output: config.OutputConfig{OTEL: true},
	}
	log, err := New(cfg, rec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Info(context.Background(), "bridged entry")

	var found bool
	for _, records := range rec.Result() {
		for _, r := range records {
			if r.Body.AsString() == "bridged entry" {
				found = true
			}
		}
	}
	if !found {
		t.Error("entry never reached the OTEL log provider")
	}
}

func TestLogger_ContextFields(t *testing.T) {
	log := NewTestLogger()

	// Without an active span, no trace fields are attached.
	log.Info(context.Background(), "no span")
	entries := log.FilterMessage("no span").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	for _, f := range entries[0].Context {
		if f.Key == "trace_id" {
			t.Error("trace_id attached without an active span")
		}
	}

	// With a span in context, trace correlation fields come along.
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	log.Info(ctx, "with span")

	entries = log.FilterMessage("with span").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	var found bool
	for _, f := range entries[0].Context {
		if f.Key == "trace_id" {
			found = true
		}
	}
	if !found {
		t.Error("trace_id missing from span-scoped log entry")
	}
}

func TestLogger_NamedAndWith(t *testing.T) {
	log := NewTestLogger()
	child := log.Named("agent").With()
	child.Warn(context.Background(), "scoped")
	log.AssertLogged(t, zapcore.WarnLevel, "scoped")
}
