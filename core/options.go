package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/ema-agent/core/actions"
	"github.com/koscakluka/ema-agent/core/conversations"
	"github.com/koscakluka/ema-agent/core/llms"
	"github.com/koscakluka/ema-agent/core/speechtotext"
	"github.com/koscakluka/ema-agent/core/texttospeech"
)

const (
	DefaultSystemPrompt = "You are Ema, a friendly voice assistant running on the user's device. " +
		"Keep answers short and conversational, they are spoken aloud. " +
		"Do not use markdown, lists or emoji."

	DefaultLanguage = "en-US"

	inputQueueCapacity = 8
	notificationLimit  = 5
)

// Speaker speaks text and blocks until it was heard, cancelled or could not
// be spoken.
type Speaker interface {
	Speak(ctx context.Context, text string) texttospeech.SpeechReport
}

type ActionRouter interface {
	Dispatch(ctx context.Context, d actions.Directive) actions.Result
}

type Notification struct {
	Sender    string
	Text      string
	App       string
	Timestamp time.Time
}

type Notifications interface {
	// Recent returns up to n of the most recent notifications.
	Recent(ctx context.Context, n int) ([]Notification, error)
}

// ContextProvider supplies optional context for the reasoning request. An
// empty string means there is nothing to add.
type ContextProvider func(ctx context.Context) (string, error)

type Timings struct {
	TrailingSilence time.Duration
	ListenWindow    time.Duration
	// ListenRetry is waited, still accepting typed input, after the
	// listener fails.
	ListenRetry     time.Duration
	ChatTimeout     time.Duration
	SpeakPause      time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		TrailingSilence: speechtotext.DefaultTrailingSilence,
		ListenWindow:    speechtotext.DefaultWindow,
		ListenRetry:     time.Second,
		ChatTimeout:     60 * time.Second,
		SpeakPause:      250 * time.Millisecond,
	}
}

type AgentOptions struct {
	Listener      speechtotext.Listener
	Reasoner      llms.Chat
	Speaker       Speaker
	Router        ActionRouter
	ScreenContext ContextProvider
	WebContext    ContextProvider
	DeviceSummary ContextProvider
	Notifications Notifications

	SystemPrompt    string
	Language        string
	Greeting        string
	Phrases         *Phrases
	ShutdownPhrases []string
	HistoryLimit    int
	Log             *conversations.Log
	Timings         Timings
}

type AgentOption func(*AgentOptions)

func WithListener(listener speechtotext.Listener) AgentOption {
	return func(o *AgentOptions) { o.Listener = listener }
}

func WithReasoner(reasoner llms.Chat) AgentOption {
	return func(o *AgentOptions) { o.Reasoner = reasoner }
}

func WithSpeaker(speaker Speaker) AgentOption {
	return func(o *AgentOptions) { o.Speaker = speaker }
}

// WithActionRouter enables directives: the directive schema is added to the
// system prompt and directives found in replies are dispatched to router.
func WithActionRouter(router ActionRouter) AgentOption {
	return func(o *AgentOptions) { o.Router = router }
}

func WithScreenContext(provider ContextProvider) AgentOption {
	return func(o *AgentOptions) { o.ScreenContext = provider }
}

func WithWebContext(provider ContextProvider) AgentOption {
	return func(o *AgentOptions) { o.WebContext = provider }
}

func WithDeviceSummary(provider ContextProvider) AgentOption {
	return func(o *AgentOptions) { o.DeviceSummary = provider }
}

func WithNotifications(notifications Notifications) AgentOption {
	return func(o *AgentOptions) { o.Notifications = notifications }
}

func WithSystemPrompt(prompt string) AgentOption {
	return func(o *AgentOptions) { o.SystemPrompt = prompt }
}

// WithLanguage sets the listening language and picks the matching built-in
// phrases unless WithPhrases is also given.
func WithLanguage(language string) AgentOption {
	return func(o *AgentOptions) { o.Language = language }
}

func WithGreeting(greeting string) AgentOption {
	return func(o *AgentOptions) { o.Greeting = greeting }
}

func WithPhrases(phrases Phrases) AgentOption {
	return func(o *AgentOptions) { o.Phrases = &phrases }
}

func WithShutdownPhrases(phrases ...string) AgentOption {
	return func(o *AgentOptions) { o.ShutdownPhrases = phrases }
}

func WithHistoryLimit(limit int) AgentOption {
	return func(o *AgentOptions) { o.HistoryLimit = limit }
}

func WithLog(log *conversations.Log) AgentOption {
	return func(o *AgentOptions) { o.Log = log }
}

// WithTimings overrides the non-zero fields of timings.
func WithTimings(timings Timings) AgentOption {
	return func(o *AgentOptions) {
		if timings.TrailingSilence > 0 {
			o.Timings.TrailingSilence = timings.TrailingSilence
		}
		if timings.ListenWindow > 0 {
			o.Timings.ListenWindow = timings.ListenWindow
		}
		if timings.ListenRetry > 0 {
			o.Timings.ListenRetry = timings.ListenRetry
		}
		if timings.ChatTimeout > 0 {
			o.Timings.ChatTimeout = timings.ChatTimeout
		}
		if timings.SpeakPause > 0 {
			o.Timings.SpeakPause = timings.SpeakPause
		}
	}
}

func (o AgentOptions) phrases() Phrases {
	phrases := PhrasesFor(o.Language)
	if o.Phrases != nil {
		phrases = *o.Phrases
	}
	if o.Greeting != "" {
		phrases.Greeting = o.Greeting
	}
	if len(o.ShutdownPhrases) > 0 {
		phrases.ShutdownPhrases = o.ShutdownPhrases
	}
	return phrases
}
