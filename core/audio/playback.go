package audio

import (
	"context"
	"errors"
)

var ErrSinkClosed = errors.New("playback sink closed")

// PlaybackDevice hands out playback sinks. A device may only have one open
// sink at a time; opening a sink acquires the output hardware and closing it
// releases it.
type PlaybackDevice interface {
	OpenSink(ctx context.Context, encoding EncodingInfo) (PlaybackSink, error)
}

// PlaybackSink is a single streaming playback session.
type PlaybackSink interface {
	// Write queues audio for playback. Playback starts with the first write.
	Write(audio []byte) error
	// Drain blocks until all queued audio has been played, the sink is
	// closed or ctx is done.
	Drain(ctx context.Context) error
	// Close stops playback immediately and releases the output. It is safe to
	// call more than once and from any goroutine.
	Close() error
}

// PlayAll writes pcm to a freshly acquired sink and waits for it to finish.
// The sink is always released before PlayAll returns.
func PlayAll(ctx context.Context, device PlaybackDevice, encoding EncodingInfo, pcm []byte) (err error) {
	if device == nil {
		return errors.New("playback device not configured")
	}

	sink, err := device.OpenSink(ctx, encoding)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sink.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if len(pcm) == 0 {
		return nil
	}
	if err := sink.Write(pcm); err != nil {
		return err
	}

	return sink.Drain(ctx)
}
