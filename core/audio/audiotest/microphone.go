package audiotest

import (
	"context"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-agent/core/audio"
)

// Microphone is a capture device that replays a fixed list of chunks once
// capture starts.
type Microphone struct {
	Chunks [][]byte

	mu      sync.Mutex
	running bool
	starts  int
	stops   int
}

func (m *Microphone) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("capture already running")
	}
	m.running = true
	m.starts++

	chunks := append([][]byte(nil), m.Chunks...)
	go func() {
		for _, chunk := range chunks {
			onAudio(chunk)
		}
	}()
	return nil
}

func (m *Microphone) StopCapture() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.stops++
	return nil
}

func (m *Microphone) CaptureEncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

// Stats reports how many times capture was started and stopped.
func (m *Microphone) Stats() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}
