package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/koscakluka/ema-agent/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	turnCounter  metric.Int64Counter
	turnDuration metric.Float64Histogram
)

func init() {
	var err error
	turnCounter, err = meter.Int64Counter("agent.turns",
		metric.WithDescription("Number of completed conversation turns"),
		metric.WithUnit("{turn}"))
	if err != nil {
		logger.Warn("failed to create turn counter", "error", err)
		turnCounter = noop.Int64Counter{}
	}

	turnDuration, err = meter.Float64Histogram("agent.turn.duration",
		metric.WithDescription("Time from a transcript until the reply was spoken"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("failed to create turn duration histogram", "error", err)
		turnDuration = noop.Float64Histogram{}
	}
}
