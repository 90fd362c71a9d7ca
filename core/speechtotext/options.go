package speechtotext

import (
	"context"
	"time"
)

const (
	DefaultTrailingSilence = 3500 * time.Millisecond
	DefaultWindow          = 8 * time.Second
)

// ListenOptions bounds a single Listen call.
type ListenOptions struct {
	// TrailingSilence ends an utterance once the speaker has been quiet for
	// this long.
	TrailingSilence time.Duration
	// Window is how long to wait for speech to start before giving up with an
	// empty transcript.
	Window time.Duration
	// Language is a BCP 47 tag such as "en-US".
	Language string
}

func (o ListenOptions) WithDefaults() ListenOptions {
	if o.TrailingSilence <= 0 {
		o.TrailingSilence = DefaultTrailingSilence
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Language == "" {
		o.Language = "en-US"
	}
	return o
}

// Listener turns the next utterance into text. An empty transcript without
// an error means nothing was said.
type Listener interface {
	Listen(ctx context.Context, options ListenOptions) (string, error)
}

// ListenerFunc adapts a function to [Listener].
type ListenerFunc func(ctx context.Context, options ListenOptions) (string, error)

func (f ListenerFunc) Listen(ctx context.Context, options ListenOptions) (string, error) {
	return f(ctx, options)
}
