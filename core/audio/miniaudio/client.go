package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-agent/core/audio"
)

// Client owns the miniaudio context. Playback sinks are opened per speech
// session so the output device is only held while something is speaking.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	captureClient

	sinkMu sync.Mutex
	sink   *playbackSink
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, fmt.Errorf("malgo context init failed: %w", err)
	}

	client := Client{audioContext: audioCtx}

	if err := client.captureClient.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

// OpenSink acquires the playback device for a new session. A sink that is
// still open is closed first.
func (c *Client) OpenSink(_ context.Context, encoding audio.EncodingInfo) (audio.PlaybackSink, error) {
	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()

	if c.sink != nil {
		_ = c.sink.Close()
		c.sink = nil
	}

	sink, err := newPlaybackSink(c.audioContext, encoding, func(released *playbackSink) {
		c.sinkMu.Lock()
		defer c.sinkMu.Unlock()
		if c.sink == released {
			c.sink = nil
		}
	})
	if err != nil {
		return nil, err
	}

	c.sink = sink
	return sink, nil
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	return c.captureClient.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) CaptureEncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (c *Client) Close() {
	c.sinkMu.Lock()
	sink := c.sink
	c.sink = nil
	c.sinkMu.Unlock()
	if sink != nil {
		_ = sink.Close()
	}

	_ = c.captureClient.Uninit()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
	}
}
