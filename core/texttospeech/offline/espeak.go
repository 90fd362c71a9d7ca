package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/koscakluka/ema-agent/core/audio"
	"github.com/koscakluka/ema-agent/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultBinary     = "espeak-ng"
	defaultRate       = 175
	defaultSampleRate = 22050
)

var ErrEngineNotFound = errors.New("offline speech engine not found")

type Options struct {
	Binary string
	// Args replaces the default arguments. Occurrences of {lang} and {rate}
	// are substituted.
	Args       []string
	Rate       int
	SampleRate int
	Device     audio.PlaybackDevice
}

type Option func(*Options)

func WithBinary(binary string) Option {
	return func(o *Options) {
		if binary != "" {
			o.Binary = binary
		}
	}
}

func WithArgs(args ...string) Option {
	return func(o *Options) { o.Args = args }
}

func WithRate(wordsPerMinute int) Option {
	return func(o *Options) {
		if wordsPerMinute > 0 {
			o.Rate = wordsPerMinute
		}
	}
}

// WithSampleRate sets the rate assumed when the engine output carries no
// usable WAV header.
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

// Espeak synthesizes speech with a locally installed engine. It needs no
// network access.
type Espeak struct {
	options Options
}

func NewEspeak(opts ...Option) *Espeak {
	options := Options{
		Binary:     defaultBinary,
		Rate:       defaultRate,
		SampleRate: defaultSampleRate,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Espeak{options: options}
}

func (e *Espeak) Name() string { return "offline" }

func (e *Espeak) Speak(ctx context.Context, request texttospeech.SynthesisRequest) error {
	ctx, span := tracer.Start(ctx, "offline speak")
	defer span.End()

	pcm, sampleRate, err := e.synthesize(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.Int("audio.bytes", len(pcm)), attribute.Int("audio.sample_rate", sampleRate))

	return texttospeech.PlayPCM(ctx, e.options.Device, audio.GetSpeechEncodingInfo(sampleRate), pcm)
}

func (e *Espeak) synthesize(ctx context.Context, request texttospeech.SynthesisRequest) ([]byte, int, error) {
	if e.options.Device == nil {
		return nil, 0, errors.New("playback device not configured")
	}

	binary, err := exec.LookPath(e.options.Binary)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrEngineNotFound, e.options.Binary)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, e.args(request.LanguageHint)...)
	cmd.Stdin = strings.NewReader(request.Text)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, fmt.Errorf("speech engine failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	data := stdout.Bytes()
	sampleRate := e.options.SampleRate
	if rate := audio.WAVSampleRate(data); rate > 0 {
		sampleRate = rate
	}
	return audio.StripWAVHeader(data), sampleRate, nil
}

func (e *Espeak) args(language string) []string {
	if language == "" {
		language = "en"
	}
	if len(e.options.Args) == 0 {
		return []string{"--stdout", "-v", language, "-s", strconv.Itoa(e.options.Rate)}
	}

	args := make([]string, len(e.options.Args))
	for i, arg := range e.options.Args {
		arg = strings.ReplaceAll(arg, "{lang}", language)
		args[i] = strings.ReplaceAll(arg, "{rate}", strconv.Itoa(e.options.Rate))
	}
	return args
}
