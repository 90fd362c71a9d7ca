package audio

import "context"

// CaptureDevice streams microphone audio to a callback until stopped.
type CaptureDevice interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	CaptureEncodingInfo() EncodingInfo
}
