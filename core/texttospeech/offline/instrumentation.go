package offline

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/koscakluka/ema-agent/core/texttospeech/offline"

var tracer = otel.Tracer(scopeName)
