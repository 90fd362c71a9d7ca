package texttospeech

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/koscakluka/ema-agent/core/texttospeech"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	tierFailures  metric.Int64Counter
	speakDuration metric.Float64Histogram
)

func init() {
	var err error
	tierFailures, err = meter.Int64Counter("tts.tier.failures",
		metric.WithDescription("Number of failed synthesis tier attempts"),
		metric.WithUnit("{failure}"))
	if err != nil {
		logger.Warn("failed to create tier failure counter", "error", err)
		tierFailures = noop.Int64Counter{}
	}

	speakDuration, err = meter.Float64Histogram("tts.speak.duration",
		metric.WithDescription("Time from a speak request until playback finished"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("failed to create speak duration histogram", "error", err)
		speakDuration = noop.Float64Histogram{}
	}
}
