package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-agent/core/audio"
)

// Client is a playback device backed by PortAudio's blocking stream API.
type Client struct {
	bufferSize int

	mu   sync.Mutex
	sink *playbackSink
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	if bufferSize <= 0 {
		bufferSize = 480
	}

	return &Client{bufferSize: bufferSize}, nil
}

func (c *Client) OpenSink(_ context.Context, encoding audio.EncodingInfo) (audio.PlaybackSink, error) {
	if encoding.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported playback encoding %q", encoding.Format.Name())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sink != nil {
		_ = c.sink.Close()
		c.sink = nil
	}

	out := make([]int16, c.bufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(encoding.SampleRate), c.bufferSize, out)
	if err != nil {
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	sink := &playbackSink{
		stream:     stream,
		out:        out,
		bufferSize: c.bufferSize,
		pending:    make(chan struct{}, 1),
		idle:       make(chan struct{}, 1),
		closed:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	go sink.writeLoop()

	c.sink = sink
	return sink, nil
}

func (c *Client) Close() {
	c.mu.Lock()
	sink := c.sink
	c.sink = nil
	c.mu.Unlock()
	if sink != nil {
		_ = sink.Close()
	}
	_ = portaudio.Terminate()
}

type playbackSink struct {
	stream     *portaudio.Stream
	out        []int16
	bufferSize int

	mu            sync.Mutex
	leftoverAudio []byte
	started       bool

	pending chan struct{}
	idle    chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

func (s *playbackSink) Write(pcm []byte) error {
	select {
	case <-s.closed:
		return audio.ErrSinkClosed
	default:
	}

	s.mu.Lock()
	s.leftoverAudio = append(s.leftoverAudio, pcm...)
	s.mu.Unlock()

	select {
	case s.pending <- struct{}{}:
	default:
	}
	return nil
}

func (s *playbackSink) Drain(ctx context.Context) error {
	for {
		s.mu.Lock()
		remaining := len(s.leftoverAudio)
		s.mu.Unlock()
		if remaining < s.bufferSize*2 {
			return nil
		}

		select {
		case <-s.idle:
		case <-s.closed:
			return audio.ErrSinkClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *playbackSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		<-s.done
		if stopErr := s.stream.Stop(); stopErr != nil && s.started {
			err = fmt.Errorf("failed to stop portaudio stream: %w", stopErr)
		}
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close portaudio stream: %w", closeErr)
		}
	})
	return err
}

func (s *playbackSink) writeLoop() {
	defer close(s.done)

	frameBytes := s.bufferSize * 2
	for {
		select {
		case <-s.closed:
			return
		case <-s.pending:
		}

		for {
			s.mu.Lock()
			if len(s.leftoverAudio) < frameBytes {
				s.mu.Unlock()
				break
			}
			frame := s.leftoverAudio[:frameBytes]
			s.leftoverAudio = s.leftoverAudio[frameBytes:]
			if !s.started {
				if err := s.stream.Start(); err != nil {
					s.mu.Unlock()
					return
				}
				s.started = true
			}
			s.mu.Unlock()

			_ = binary.Read(bytes.NewReader(frame), binary.LittleEndian, s.out)
			if err := s.stream.Write(); err != nil {
				logger.Warn("portaudio write failed", "error", err)
			}

			select {
			case <-s.closed:
				return
			default:
			}
		}

		select {
		case s.idle <- struct{}{}:
		default:
		}
	}
}
