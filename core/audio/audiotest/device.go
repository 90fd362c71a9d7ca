// Package audiotest provides an in-memory playback device for tests.
package audiotest

import (
	"context"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-agent/core/audio"
)

// Device records every sink it opens. Only one sink may be open at a time,
// mirroring hardware that cannot be shared.
type Device struct {
	mu      sync.Mutex
	sinks   []*Sink
	open    *Sink
	overlap int

	// OpenErr, when set, is returned from OpenSink.
	OpenErr error
	// BlockDrain makes Drain wait until the sink is closed or ctx is done.
	BlockDrain bool
}

func (d *Device) OpenSink(_ context.Context, encoding audio.EncodingInfo) (audio.PlaybackSink, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if d.open != nil {
		d.overlap++
	}

	sink := &Sink{device: d, Encoding: encoding, closed: make(chan struct{}), block: d.BlockDrain}
	d.sinks = append(d.sinks, sink)
	d.open = sink
	return sink, nil
}

// Sinks returns all sinks opened so far, oldest first.
func (d *Device) Sinks() []*Sink {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Sink(nil), d.sinks...)
}

// Overlaps is the number of times a sink was opened while another was still
// open.
func (d *Device) Overlaps() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overlap
}

// OpenCount is the number of sinks currently open.
func (d *Device) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, sink := range d.sinks {
		if !sink.IsClosed() {
			count++
		}
	}
	return count
}

func (d *Device) release(sink *Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open == sink {
		d.open = nil
	}
}

type Sink struct {
	device   *Device
	Encoding audio.EncodingInfo
	block    bool

	mu      sync.Mutex
	written []byte
	writes  int

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *Sink) Write(audio []byte) error {
	if s.IsClosed() {
		return fmt.Errorf("write to closed sink")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, audio...)
	s.writes++
	return nil
}

func (s *Sink) Drain(ctx context.Context) error {
	if !s.block {
		return nil
	}
	select {
	case <-s.closed:
		return audio.ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.device.release(s)
	})
	return nil
}

func (s *Sink) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Written returns a copy of all audio written to the sink.
func (s *Sink) Written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written...)
}

func (s *Sink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
