package cartesia

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/koscakluka/ema-agent/core/texttospeech/cartesia"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var timeToFirstAudio metric.Float64Histogram

func init() {
	var err error
	timeToFirstAudio, err = meter.Float64Histogram("tts.streaming.time_to_first_audio",
		metric.WithDescription("Time from sending a generation request to the first audio chunk"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 2, 5))
	if err != nil {
		logger.Warn("failed to create time to first audio histogram", "error", err)
		timeToFirstAudio = noop.Float64Histogram{}
	}
}
