package texttospeech

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-agent/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PlayPCM plays a complete PCM buffer and blocks until it has been played.
// The playback sink is released before PlayPCM returns, whether playback
// finished, failed or was cancelled.
func PlayPCM(ctx context.Context, device audio.PlaybackDevice, encoding audio.EncodingInfo, pcm []byte) error {
	ctx, span := tracer.Start(ctx, "play pcm")
	defer span.End()
	span.SetAttributes(
		attribute.Int("audio.bytes", len(pcm)),
		attribute.Int("audio.sample_rate", encoding.SampleRate),
	)

	if err := audio.PlayAll(ctx, device, encoding, pcm); err != nil {
		err = fmt.Errorf("failed to play audio: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
