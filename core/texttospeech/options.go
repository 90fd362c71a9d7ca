package texttospeech

import (
	"context"
)

// SynthesisRequest is a single piece of text to be spoken. It lives for the
// duration of one Speak call.
type SynthesisRequest struct {
	Text         string
	LanguageHint string
	VoiceID      string
}

// Synthesizer is one tier of the speech chain. Speak blocks until the audio
// has finished playing, ctx is cancelled or the tier fails.
//
// Implementations must release any playback resource they hold before Speak
// returns, including when ctx is cancelled.
type Synthesizer interface {
	Name() string
	Speak(ctx context.Context, request SynthesisRequest) error
}

type closer interface {
	Close() error
}

type ChainOptions struct {
	Streaming Synthesizer
	Batch     Synthesizer
	Offline   Synthesizer

	// SkipStreaming starts the chain at the batch tier.
	SkipStreaming bool

	Language string
	VoiceID  string
}

type ChainOption func(*ChainOptions)

func WithStreaming(synthesizer Synthesizer) ChainOption {
	return func(o *ChainOptions) { o.Streaming = synthesizer }
}

func WithBatch(synthesizer Synthesizer) ChainOption {
	return func(o *ChainOptions) { o.Batch = synthesizer }
}

func WithOffline(synthesizer Synthesizer) ChainOption {
	return func(o *ChainOptions) { o.Offline = synthesizer }
}

// WithoutStreaming skips the streaming tier even if one is configured.
func WithoutStreaming() ChainOption {
	return func(o *ChainOptions) { o.SkipStreaming = true }
}

func WithLanguage(language string) ChainOption {
	return func(o *ChainOptions) {
		if language == "" {
			return
		}
		o.Language = language
	}
}

func WithVoice(voiceID string) ChainOption {
	return func(o *ChainOptions) { o.VoiceID = voiceID }
}
