package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-agent/core/conversations"
	"go.opentelemetry.io/otel/attribute"
)

var ErrAlreadyRunning = errors.New("agent is already running")

// Agent listens, thinks and speaks in a loop until told to stop. All work
// happens on the goroutine that called Run; the other methods only signal
// it.
type Agent struct {
	options AgentOptions
	phrases Phrases
	history *conversations.History
	log     *conversations.Log
	state   stateBroadcaster

	input chan string

	started  atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}

	pauseMu sync.Mutex
	resumed chan struct{}

	lastAnnounced time.Time
}

func NewAgent(opts ...AgentOption) *Agent {
	options := AgentOptions{
		SystemPrompt: DefaultSystemPrompt,
		Language:     DefaultLanguage,
		HistoryLimit: conversations.DefaultHistoryLimit,
		Timings:      DefaultTimings(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	log := options.Log
	if log == nil {
		log = conversations.NewLog(conversations.DefaultReplayLimit)
	}

	return &Agent{
		options: options,
		phrases: options.phrases(),
		history: conversations.NewHistory(options.HistoryLimit),
		log:     log,
		input:   make(chan string, inputQueueCapacity),
		stopped: make(chan struct{}),
	}
}

// Run drives the conversation until a shutdown phrase is heard, Stop is
// called or ctx is cancelled. It may only be called once.
func (a *Agent) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.Stop()
	defer a.state.set(StateInactive)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.stopped:
			cancel()
		case <-runCtx.Done():
		}
	}()

	ctx, span := tracer.Start(runCtx, "run agent")
	defer span.End()
	span.SetAttributes(attribute.String("agent.language", a.options.Language))

	a.lastAnnounced = time.Now()
	logger.Info("agent started", "language", a.options.Language)

	a.greet(ctx)
	for ctx.Err() == nil {
		if !a.waitWhilePaused(ctx) {
			break
		}
		if finished := a.turn(ctx); finished {
			break
		}
	}

	logger.Info("agent stopped")
	return nil
}

// Stop ends the loop and unblocks any listen, chat or speech in progress.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() { close(a.stopped) })
	a.Resume()
}

// Pause parks the loop between turns until Resume or Stop.
func (a *Agent) Pause() {
	a.pauseMu.Lock()
	defer a.pauseMu.Unlock()
	if a.resumed == nil {
		a.resumed = make(chan struct{})
	}
}

func (a *Agent) Resume() {
	a.pauseMu.Lock()
	defer a.pauseMu.Unlock()
	if a.resumed != nil {
		close(a.resumed)
		a.resumed = nil
	}
}

func (a *Agent) waitWhilePaused(ctx context.Context) bool {
	a.pauseMu.Lock()
	resumed := a.resumed
	a.pauseMu.Unlock()
	if resumed == nil {
		return true
	}

	a.state.set(StatePaused)
	select {
	case <-resumed:
		return ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

// SubmitText queues typed input for the loop. It reports false when the text
// is blank, the queue is full or the agent has stopped.
func (a *Agent) SubmitText(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	select {
	case <-a.stopped:
		return false
	default:
	}

	select {
	case a.input <- text:
		return true
	default:
		return false
	}
}

func (a *Agent) State() AgentState { return a.state.get() }

// SubscribeState delivers the current state followed by every change. A slow
// subscriber may miss intermediate states but always sees the latest one.
func (a *Agent) SubscribeState() (<-chan AgentState, func()) {
	return a.state.subscribe()
}

func (a *Agent) Log() *conversations.Log { return a.log }

func (a *Agent) History() *conversations.History { return a.history }
