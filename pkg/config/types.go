// Package config provides configuration loading for attachd.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the top-level attachd configuration.
type Config struct {
	// Enabled controls whether attach installs anything at all.
	// When false, Install returns a no-op handle without touching the host.
	Enabled *bool `koanf:"enabled"`

	// ForceSynchronousListeners forces post-attach listeners to run on the
	// attaching goroutine even when the host's logging subsystem would
	// otherwise require deferred dispatch.
	ForceSynchronousListeners bool `koanf:"force_synchronous_listeners"`

	// TrackStartEvents maps a span name to the event name whose start
	// timestamp is bound into the ambient carrier when that span starts.
	TrackStartEvents map[string]string `koanf:"track_start_events"`

	// TrackStopEvents maps a span name to the event name whose bound start
	// timestamp is read back to compute an elapsed duration attribute.
	TrackStopEvents map[string]string `koanf:"track_stop_events"`

	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// LoggingConfig controls the agent's own log output.
type LoggingConfig struct {
	Level  zapcore.Level     `koanf:"level"`
	Format string            `koanf:"format"`
	Output OutputConfig      `koanf:"output"`
	Fields map[string]string `koanf:"fields"`
}

// OutputConfig controls where logs are written.
type OutputConfig struct {
	Stdout bool `koanf:"stdout"`
	OTEL   bool `koanf:"otel"`
}

// TelemetryConfig holds telemetry SDK configuration.
type TelemetryConfig struct {
	Enabled        bool           `koanf:"enabled"`
	Endpoint       string         `koanf:"endpoint"`
	Protocol       string         `koanf:"protocol"` // "grpc" or "http/protobuf"
	ServiceName    string         `koanf:"service_name"`
	ServiceVersion string         `koanf:"service_version"`
	Insecure       bool           `koanf:"insecure"`
	TLSSkipVerify  bool           `koanf:"tls_skip_verify"`
	Sampling       SamplingConfig `koanf:"sampling"`
	Metrics        MetricsConfig  `koanf:"metrics"`
	Shutdown       ShutdownConfig `koanf:"shutdown"`
}

// SamplingConfig controls trace sampling behavior.
type SamplingConfig struct {
	Rate float64 `koanf:"rate"` // 0.0-1.0, default 1.0
}

// MetricsConfig controls metrics export.
type MetricsConfig struct {
	Enabled        bool     `koanf:"enabled"`
	ExportInterval Duration `koanf:"export_interval"`
}

// ShutdownConfig controls graceful shutdown behavior.
type ShutdownConfig struct {
	Timeout Duration `koanf:"timeout"`
}

// NewDefaultConfig returns production-ready defaults. The agent is enabled,
// listeners dispatch is decided by the host hazard check, and no duration
// tracking mappings are configured.
func NewDefaultConfig() *Config {
	enabled := true
	return &Config{
		Enabled: &enabled,
		Logging: LoggingConfig{
			Level:  zapcore.InfoLevel,
			Format: "json",
			Output: OutputConfig{Stdout: true},
			Fields: map[string]string{"service": "attachd"},
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			ServiceName:    "attachd",
			ServiceVersion: "0.1.0",
			Insecure:       true,
			Sampling:       SamplingConfig{Rate: 1.0},
			Metrics: MetricsConfig{
				Enabled:        true,
				ExportInterval: Duration(15 * time.Second),
			},
			Shutdown: ShutdownConfig{Timeout: Duration(5 * time.Second)},
		},
	}
}

// IsEnabled reports whether the agent should attach. Nil means the key was
// never set and defaults to true.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if !c.Logging.Output.Stdout && !c.Logging.Output.OTEL {
		return fmt.Errorf("at least one logging output must be enabled (stdout or otel)")
	}
	if c.Logging.Output.OTEL && !c.Logging.Output.Stdout && !c.Telemetry.Enabled {
		return fmt.Errorf("logging.output.otel as the only output requires telemetry.enabled")
	}
	for spanName, eventName := range c.TrackStartEvents {
		if spanName == "" || eventName == "" {
			return fmt.Errorf("track_start_events entries must have non-empty span and event names")
		}
	}
	for spanName, eventName := range c.TrackStopEvents {
		if spanName == "" || eventName == "" {
			return fmt.Errorf("track_stop_events entries must have non-empty span and event names")
		}
	}
	return c.Telemetry.Validate()
}

// Validate checks telemetry configuration for errors.
func (t *TelemetryConfig) Validate() error {
	if !t.Enabled {
		return nil
	}
	if t.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	if t.ServiceName == "" {
		return fmt.Errorf("telemetry.service_name is required when telemetry is enabled")
	}
	if t.Protocol != "" && t.Protocol != "grpc" && t.Protocol != "http/protobuf" {
		return fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", t.Protocol)
	}
	if t.Sampling.Rate < 0 || t.Sampling.Rate > 1 {
		return fmt.Errorf("telemetry.sampling.rate must be between 0 and 1, got %f", t.Sampling.Rate)
	}
	if t.Metrics.Enabled && t.Metrics.ExportInterval.Duration() <= 0 {
		return fmt.Errorf("telemetry.metrics.export_interval must be positive when metrics enabled")
	}
	if t.Shutdown.Timeout.Duration() <= 0 {
		return fmt.Errorf("telemetry.shutdown.timeout must be positive")
	}
	return nil
}
