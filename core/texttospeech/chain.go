package texttospeech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// SpeechReport describes how a Speak call ended.
type SpeechReport struct {
	// Tier is the name of the synthesizer that completed the speech, empty if
	// none did.
	Tier string
	// Cancelled is set when the call was superseded or its context ended.
	Cancelled bool
	// Exhausted is set when every configured tier failed.
	Exhausted bool
	Failures  []TierFailure
}

type TierFailure struct {
	Tier string
	Err  error
}

// Chain speaks text through an ordered list of synthesizers, falling back to
// the next one whenever a tier fails. Only one Speak is ever in flight: a new
// call cancels the previous one and waits for it to release its resources.
type Chain struct {
	options ChainOptions

	mu       sync.Mutex
	inflight *speakCall
	closed   bool
}

type speakCall struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewChain(opts ...ChainOption) *Chain {
	chain := &Chain{options: ChainOptions{Language: "en"}}
	for _, opt := range opts {
		opt(&chain.options)
	}
	return chain
}

func (c *Chain) tiers() []Synthesizer {
	tiers := make([]Synthesizer, 0, 3)
	if c.options.Streaming != nil && !c.options.SkipStreaming {
		tiers = append(tiers, c.options.Streaming)
	}
	if c.options.Batch != nil {
		tiers = append(tiers, c.options.Batch)
	}
	if c.options.Offline != nil {
		tiers = append(tiers, c.options.Offline)
	}
	return tiers
}

// Speak blocks until text has been spoken by one of the tiers, the call is
// cancelled or every tier has failed. Blank text returns immediately.
func (c *Chain) Speak(ctx context.Context, text string) SpeechReport {
	if c == nil || strings.TrimSpace(text) == "" {
		return SpeechReport{}
	}

	ctx, cancel := context.WithCancel(ctx)
	call := &speakCall{cancel: cancel, done: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return SpeechReport{Cancelled: true}
	}
	previous := c.inflight
	c.inflight = call
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.inflight == call {
			c.inflight = nil
		}
		c.mu.Unlock()
		close(call.done)
	}()

	// the previous call must let go of its sink before we can open ours
	if previous != nil {
		previous.cancel()
		<-previous.done
	}

	ctx, span := tracer.Start(ctx, "speak")
	defer span.End()
	span.SetAttributes(attribute.Int("speech.text_length", len(text)))

	started := time.Now()
	report := c.speak(ctx, SynthesisRequest{
		Text:         text,
		LanguageHint: c.options.Language,
		VoiceID:      c.options.VoiceID,
	})

	span.SetAttributes(
		attribute.String("speech.tier", report.Tier),
		attribute.Bool("speech.cancelled", report.Cancelled),
		attribute.Bool("speech.exhausted", report.Exhausted),
	)
	if report.Exhausted {
		span.SetStatus(codes.Error, "all synthesis tiers failed")
		logger.Error("all synthesis tiers failed", "failures", len(report.Failures))
	}
	if report.Tier != "" {
		speakDuration.Record(ctx, time.Since(started).Seconds(),
			metric.WithAttributes(attribute.String("tier", report.Tier)))
	}

	return report
}

func (c *Chain) speak(ctx context.Context, request SynthesisRequest) SpeechReport {
	var report SpeechReport
	for _, tier := range c.tiers() {
		if ctx.Err() != nil {
			report.Cancelled = true
			return report
		}

		err := tier.Speak(ctx, request)
		if err == nil {
			report.Tier = tier.Name()
			return report
		}
		if ctx.Err() != nil {
			report.Cancelled = true
			return report
		}

		report.Failures = append(report.Failures, TierFailure{Tier: tier.Name(), Err: err})
		tierFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier.Name())))
		logger.Warn("synthesis tier failed, falling back", "tier", tier.Name(), "error", err)
	}

	report.Exhausted = true
	return report
}

// Cancel stops any in-flight speech and waits until it has released its
// playback resources.
func (c *Chain) Cancel() {
	if c == nil {
		return
	}
	c.mu.Lock()
	call := c.inflight
	c.mu.Unlock()

	if call != nil {
		call.cancel()
		<-call.done
	}
}

// Close cancels in-flight speech and closes every tier that holds resources.
// Speak calls after Close return immediately as cancelled.
func (c *Chain) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Cancel()

	var errs []error
	for _, tier := range []Synthesizer{c.options.Streaming, c.options.Batch, c.options.Offline} {
		if closable, ok := tier.(closer); ok {
			if err := closable.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
