package cartesia

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-agent/core/audio"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultBaseURL      = "https://api.cartesia.ai"
	defaultWebsocketURL = "wss://api.cartesia.ai/tts/websocket"
	defaultVersion      = "2025-04-16"
	defaultModel        = "sonic-2"
	defaultVoiceID      = "a0e99841-438c-4a64-b679-ae501e7d6091"
)

type Options struct {
	APIKey       string
	BaseURL      string
	WebsocketURL string
	Version      string
	ModelID      string
	VoiceID      string
	SampleRate   int

	Device     audio.PlaybackDevice
	HTTPClient *http.Client
	Dialer     *websocket.Dialer

	Timings Timings
}

// Timings bounds every wait of the synthesizers.
type Timings struct {
	ConnectTimeout   time.Duration
	ConnectPoll      time.Duration
	KeepAlive        time.Duration
	ReconnectBackoff time.Duration
	// ReadTimeout is how long the connection may stay silent, pongs
	// included, before it is treated as lost. Must exceed KeepAlive.
	ReadTimeout time.Duration
	// GenerationTimeout bounds the wait for the first chunk of a generation
	// and the gap between consecutive chunks.
	GenerationTimeout time.Duration
	// DrainTimeout caps how long a finished generation may take to play out
	// before the call is completed anyway.
	DrainTimeout time.Duration
	// Grace is waited after the sink drained so the output buffer empties.
	Grace time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		ConnectTimeout:    5 * time.Second,
		ConnectPoll:       50 * time.Millisecond,
		KeepAlive:         20 * time.Second,
		ReconnectBackoff:  3 * time.Second,
		ReadTimeout:       45 * time.Second,
		GenerationTimeout: 10 * time.Second,
		DrainTimeout:      30 * time.Second,
		Grace:             150 * time.Millisecond,
	}
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		BaseURL:      defaultBaseURL,
		WebsocketURL: defaultWebsocketURL,
		Version:      defaultVersion,
		ModelID:      defaultModel,
		VoiceID:      defaultVoiceID,
		SampleRate:   audio.DefaultSpeechSampleRate,
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
		Dialer:  websocket.DefaultDialer,
		Timings: DefaultTimings(),
	}
}

func WithAPIKey(apiKey string) Option {
	return func(o *Options) { o.APIKey = apiKey }
}

func WithBaseURL(baseURL string) Option {
	return func(o *Options) {
		if baseURL != "" {
			o.BaseURL = baseURL
		}
	}
}

func WithWebsocketURL(websocketURL string) Option {
	return func(o *Options) {
		if websocketURL != "" {
			o.WebsocketURL = websocketURL
		}
	}
}

func WithVersion(version string) Option {
	return func(o *Options) {
		if version != "" {
			o.Version = version
		}
	}
}

func WithModel(modelID string) Option {
	return func(o *Options) {
		if modelID != "" {
			o.ModelID = modelID
		}
	}
}

// WithVoice sets the voice used when a request does not name one.
func WithVoice(voiceID string) Option {
	return func(o *Options) {
		if voiceID != "" {
			o.VoiceID = voiceID
		}
	}
}

func WithSampleRate(sampleRate int) Option {
	return func(o *Options) {
		if sampleRate > 0 {
			o.SampleRate = sampleRate
		}
	}
}

func WithPlaybackDevice(device audio.PlaybackDevice) Option {
	return func(o *Options) { o.Device = device }
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		if client != nil {
			o.HTTPClient = client
		}
	}
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(o *Options) {
		if dialer != nil {
			o.Dialer = dialer
		}
	}
}

// WithTimings overrides the non-zero fields of the default timings.
func WithTimings(timings Timings) Option {
	return func(o *Options) {
		if timings.ConnectTimeout > 0 {
			o.Timings.ConnectTimeout = timings.ConnectTimeout
		}
		if timings.ConnectPoll > 0 {
			o.Timings.ConnectPoll = timings.ConnectPoll
		}
		if timings.KeepAlive > 0 {
			o.Timings.KeepAlive = timings.KeepAlive
		}
		if timings.ReconnectBackoff > 0 {
			o.Timings.ReconnectBackoff = timings.ReconnectBackoff
		}
		if timings.ReadTimeout > 0 {
			o.Timings.ReadTimeout = timings.ReadTimeout
		}
		if timings.GenerationTimeout > 0 {
			o.Timings.GenerationTimeout = timings.GenerationTimeout
		}
		if timings.DrainTimeout > 0 {
			o.Timings.DrainTimeout = timings.DrainTimeout
		}
		if timings.Grace > 0 {
			o.Timings.Grace = timings.Grace
		}
	}
}

func (o Options) encoding() audio.EncodingInfo {
	return audio.GetSpeechEncodingInfo(o.SampleRate)
}

func (o Options) voiceFor(voiceID string) voiceSpec {
	if voiceID == "" {
		voiceID = o.VoiceID
	}
	return voiceSpec{Mode: "id", ID: voiceID}
}
