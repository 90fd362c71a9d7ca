package cartesia

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-agent/core/audio"
	"github.com/koscakluka/ema-agent/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Batch requests the whole utterance in one HTTP call and plays it once it
// has been received.
type Batch struct {
	options Options
}

func NewBatch(opts ...Option) *Batch {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Batch{options: options}
}

func (b *Batch) Name() string { return "batch" }

func (b *Batch) Speak(ctx context.Context, request texttospeech.SynthesisRequest) error {
	ctx, span := tracer.Start(ctx, "batch speak")
	defer span.End()

	pcm, err := b.synthesize(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.Int("response.audio_bytes", len(pcm)))

	return texttospeech.PlayPCM(ctx, b.options.Device, b.options.encoding(), pcm)
}

// synthesize returns the raw PCM for request with the WAV header removed.
func (b *Batch) synthesize(ctx context.Context, request texttospeech.SynthesisRequest) ([]byte, error) {
	if b.options.APIKey == "" || b.options.Device == nil {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(generationRequest{
		ModelID:      b.options.ModelID,
		Transcript:   request.Text,
		Voice:        b.options.voiceFor(request.VoiceID),
		OutputFormat: outputFormat{Container: "wav", Encoding: b.options.encoding().Format.PCMName(), SampleRate: b.options.SampleRate},
		Language:     request.LanguageHint,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	endpoint := strings.TrimSuffix(b.options.BaseURL, "/") + "/tts/bytes"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.options.APIKey)
	req.Header.Set("Cartesia-Version", b.options.Version)

	resp, err := b.options.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("non-OK HTTP status: %s: %s", resp.Status, strings.TrimSpace(string(errorBody)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading audio: %w", err)
	}

	return audio.StripWAVHeader(data), nil
}
