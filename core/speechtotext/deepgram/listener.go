package deepgram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-agent/core/audio"
	"github.com/koscakluka/ema-agent/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
)

const (
	defaultURL   = "wss://api.deepgram.com/v1/listen"
	defaultModel = "nova-3"

	// deepgram rejects shorter utterance end windows
	minUtteranceEnd = time.Second
	// an utterance that never ends is cut off after this long
	maxUtterance = 30 * time.Second
)

var ErrNotConfigured = errors.New("deepgram listener not configured")

// Listener transcribes one utterance per Listen call by streaming captured
// audio to Deepgram's live transcription API.
type Listener struct {
	apiKey  string
	url     string
	model   string
	capture audio.CaptureDevice
	dialer  *websocket.Dialer
}

type Option func(*Listener)

func WithURL(url string) Option {
	return func(l *Listener) {
		if url != "" {
			l.url = url
		}
	}
}

func WithModel(model string) Option {
	return func(l *Listener) {
		if model != "" {
			l.model = model
		}
	}
}

func NewListener(apiKey string, capture audio.CaptureDevice, opts ...Option) *Listener {
	listener := &Listener{
		apiKey:  apiKey,
		url:     defaultURL,
		model:   defaultModel,
		capture: capture,
		dialer:  websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(listener)
	}
	return listener
}

func (l *Listener) Listen(ctx context.Context, options speechtotext.ListenOptions) (string, error) {
	ctx, span := tracer.Start(ctx, "listen")
	defer span.End()

	fail := func(err error) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if l.apiKey == "" || l.capture == nil {
		return fail(ErrNotConfigured)
	}
	options = options.WithDefaults()

	encoding, err := streamEncodingFor(l.capture.CaptureEncodingInfo())
	if err != nil {
		return fail(fmt.Errorf("invalid encoding: %w", err))
	}

	conn, err := l.connect(ctx, encoding, options)
	if err != nil {
		return fail(err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(messageType, data)
	}

	if err := l.capture.StartCapture(ctx, func(pcm []byte) {
		if err := write(websocket.BinaryMessage, pcm); err != nil {
			logger.Debug("failed to stream audio to deepgram", "error", err)
		}
	}); err != nil {
		return fail(fmt.Errorf("failed to start capture: %w", err))
	}
	defer func() {
		if err := l.capture.StopCapture(); err != nil {
			logger.Warn("failed to stop capture", "error", err)
		}
		if err := write(websocket.TextMessage, []byte(`{"type":"`+string(api.TypeCloseStreamResponse)+`"}`)); err != nil {
			logger.Debug("failed to close deepgram stream", "error", err)
		}
	}()

	accumulator := &transcriptAccumulator{}
	events := make(chan listenEvent, 16)
	go readMessages(conn, accumulator, events)

	window := time.NewTimer(options.Window)
	defer window.Stop()
	var cutoff <-chan time.Time

	for {
		select {
		case event := <-events:
			switch {
			case event.err != nil:
				return fail(fmt.Errorf("failed to read deepgram message: %w", event.err))
			case event.speechStarted:
				if cutoff == nil {
					span.AddEvent("speech started")
					window.Stop()
					cutoff = time.After(maxUtterance)
				}
			case event.done:
				span.SetAttributes(attribute.Int("transcript.length", len(event.transcript)))
				return event.transcript, nil
			}
		case <-window.C:
			if transcript := accumulator.Flush(); transcript != "" {
				return transcript, nil
			}
			return "", nil
		case <-cutoff:
			return accumulator.Flush(), nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (l *Listener) connect(ctx context.Context, encoding streamEncoding, options speechtotext.ListenOptions) (*websocket.Conn, error) {
	listenURL, err := url.Parse(l.url)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram url: %w", err)
	}

	utteranceEnd := max(options.TrailingSilence, minUtteranceEnd)
	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.name)
	queryParams.Set("sample_rate", strconv.Itoa(encoding.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", l.model)
	queryParams.Set("language", options.Language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("utterance_end_ms", strconv.FormatInt(utteranceEnd.Milliseconds(), 10))
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := l.dialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + l.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}
	return conn, nil
}

type listenEvent struct {
	speechStarted bool
	done          bool
	transcript    string
	err           error
}

func readMessages(conn *websocket.Conn, accumulator *transcriptAccumulator, events chan<- listenEvent) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				select {
				case events <- listenEvent{err: err}:
				default:
				}
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		event, ok := accumulator.Process(msg)
		if !ok {
			continue
		}
		select {
		case events <- event:
		default:
			logger.Debug("dropping listen event, nobody is waiting")
		}
		if event.done {
			return
		}
	}
}
