package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-agent/core/audio"
)

type playbackSink struct {
	device    *malgo.Device
	onRelease func(*playbackSink)

	mu            sync.Mutex
	leftoverAudio []byte
	started       bool
	drained       chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func newPlaybackSink(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo, onRelease func(*playbackSink)) (*playbackSink, error) {
	if encoding.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported playback encoding %q", encoding.Format.Name())
	}

	sampleRate := uint32(encoding.SampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = sampleRate
	config.Playback.Format = format
	config.Playback.Channels = uint32(channels)
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency
	config.PeriodSizeInFrames = sampleRate / 50 // ~20ms of audio
	config.Periods = 3

	sink := &playbackSink{
		onRelease: onRelease,
		drained:   make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: sink.processAudio(bytesPerFrame),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	sink.device = device

	return sink, nil
}

func (s *playbackSink) Write(pcm []byte) error {
	select {
	case <-s.closed:
		return audio.ErrSinkClosed
	default:
	}

	s.mu.Lock()
	s.leftoverAudio = append(s.leftoverAudio, pcm...)
	shouldStart := !s.started
	s.started = true
	s.mu.Unlock()

	// start on the first chunk so playback begins as soon as audio arrives
	if shouldStart {
		if err := s.device.Start(); err != nil {
			return fmt.Errorf("failed to start playback device: %w", err)
		}
	}
	return nil
}

func (s *playbackSink) Drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		remaining := len(s.leftoverAudio)
		s.mu.Unlock()
		if remaining == 0 {
			return nil
		}

		select {
		case <-s.drained:
		case <-s.closed:
			return audio.ErrSinkClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *playbackSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)

		s.mu.Lock()
		s.leftoverAudio = nil
		s.mu.Unlock()

		if s.device != nil {
			_ = s.device.Stop()
			s.device.Uninit()
		}
		if s.onRelease != nil {
			s.onRelease(s)
		}
	})
	return nil
}

func (s *playbackSink) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		s.mu.Lock()
		defer s.mu.Unlock()

		if len(s.leftoverAudio) == 0 {
			return
		}

		n := copy(pOutput[:need], s.leftoverAudio)
		s.leftoverAudio = s.leftoverAudio[n:]
		if len(s.leftoverAudio) == 0 {
			select {
			case s.drained <- struct{}{}:
			default:
			}
		}
	}
}
