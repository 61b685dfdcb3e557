package agent

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/attachd/internal/logging"
	"github.com/fyrsmithlabs/attachd/pkg/telemetry"
)

const meterScope = "github.com/fyrsmithlabs/attachd"

// selfMetrics counts the agent's own activity through the configured meter.
// When telemetry is disabled or degraded the meter is a no-op and the
// counters cost nothing.
type selfMetrics struct {
	unitsLoaded     metric.Int64Counter
	transformed     metric.Int64Counter
	transformErrors metric.Int64Counter
}

func newSelfMetrics(sdk *telemetry.Telemetry) (*selfMetrics, error) {
	meter := sdk.Meter(meterScope)

	unitsLoaded, err := meter.Int64Counter("attachd.units.loaded",
		metric.WithDescription("Code units observed by the load listener"))
	if err != nil {
		return nil, fmt.Errorf("units loaded counter: %w", err)
	}
	transformed, err := meter.Int64Counter("attachd.units.transformed",
		metric.WithDescription("Code units rewritten by the pipeline"))
	if err != nil {
		return nil, fmt.Errorf("transformed counter: %w", err)
	}
	transformErrors, err := meter.Int64Counter("attachd.transform.errors",
		metric.WithDescription("Transformation steps that failed and were isolated"))
	if err != nil {
		return nil, fmt.Errorf("transform errors counter: %w", err)
	}

	return &selfMetrics{
		unitsLoaded:     unitsLoaded,
		transformed:     transformed,
		transformErrors: transformErrors,
	}, nil
}

func (m *selfMetrics) unitLoaded() {
	m.unitsLoaded.Add(context.Background(), 1)
}

// OnTransformation implements pipeline.Observer.
func (m *selfMetrics) OnTransformation(name, loader string) {
	m.transformed.Add(context.Background(), 1)
}

// OnError implements pipeline.Observer.
func (m *selfMetrics) OnError(name, loader string, err error) {
	m.transformErrors.Add(context.Background(), 1)
}

// loggingObserver mirrors pipeline outcomes into the agent log. Only wired
// when debug logging is enabled; it runs on the loading hot path.
type loggingObserver struct {
	log *logging.Logger
}

func (o *loggingObserver) OnTransformation(name, loader string) {
	o.log.Debug(context.Background(), "transformed unit",
		zap.String("unit", name),
		zap.String("loader", loader),
	)
}

func (o *loggingObserver) OnError(name, loader string, err error) {
	o.log.Warn(context.Background(), "transformation step failed",
		zap.String("unit", name),
		zap.String("loader", loader),
		zap.Error(err),
	)
}
