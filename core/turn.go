package orchestration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/koscakluka/ema-agent/core/actions"
	"github.com/koscakluka/ema-agent/core/conversations"
	"github.com/koscakluka/ema-agent/core/llms"
	"github.com/koscakluka/ema-agent/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errNoReasoner = errors.New("no reasoning backend configured")

func (a *Agent) greet(ctx context.Context) {
	a.state.set(StateGreeting)
	a.say(ctx, a.phrases.Greeting)
}

// turn runs one listen, think, speak cycle and reports whether the
// conversation is over.
func (a *Agent) turn(ctx context.Context) bool {
	transcript := a.listen(ctx)
	if ctx.Err() != nil {
		return true
	}
	if transcript == "" {
		a.announceNotifications(ctx)
		return false
	}

	ctx, span := tracer.Start(ctx, "turn")
	defer span.End()
	started := time.Now()

	a.history.Push(conversations.Turn{Role: llms.RoleUser, Content: transcript})
	a.log.Append(conversations.SenderUser, transcript)

	if a.phrases.isShutdown(transcript) {
		span.AddEvent("shutdown phrase heard")
		a.say(ctx, a.phrases.Closing)
		a.state.set(StateInactive)
		return true
	}

	reply := a.think(ctx)
	if ctx.Err() != nil {
		return true
	}

	a.state.set(StateSpeaking)
	a.speak(ctx, reply)

	turnCounter.Add(ctx, 1)
	turnDuration.Record(ctx, time.Since(started).Seconds())

	select {
	case <-time.After(a.options.Timings.SpeakPause):
	case <-ctx.Done():
		return true
	}
	return false
}

type listenResult struct {
	transcript string
	err        error
}

// listen returns the next thing the user said or typed. Typed input cancels
// a listen in progress.
func (a *Agent) listen(ctx context.Context) string {
	a.state.set(StateListening)

	select {
	case text := <-a.input:
		return text
	default:
	}

	if a.options.Listener == nil {
		return a.waitForInput(ctx, a.options.Timings.ListenWindow)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan listenResult, 1)
	go func() {
		transcript, err := a.options.Listener.Listen(listenCtx, speechtotext.ListenOptions{
			TrailingSilence: a.options.Timings.TrailingSilence,
			Window:          a.options.Timings.ListenWindow,
			Language:        a.options.Language,
		})
		results <- listenResult{transcript: transcript, err: err}
	}()

	select {
	case text := <-a.input:
		cancel()
		<-results
		return text
	case result := <-results:
		if result.err != nil && ctx.Err() == nil {
			logger.Warn("listening failed", "error", result.err, "retry_in", a.options.Timings.ListenRetry)
			return a.waitForInput(ctx, a.options.Timings.ListenRetry)
		}
		return strings.TrimSpace(result.transcript)
	case <-ctx.Done():
		cancel()
		<-results
		return ""
	}
}

// waitForInput waits up to d for typed input.
func (a *Agent) waitForInput(ctx context.Context, d time.Duration) string {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case text := <-a.input:
		return text
	case <-timer.C:
		return ""
	case <-ctx.Done():
		return ""
	}
}

// think asks the reasoning backend for a reply and turns it into what should
// be spoken, performing any directive it contains.
func (a *Agent) think(ctx context.Context) string {
	a.state.set(StateThinking)

	ctx, span := tracer.Start(ctx, "think")
	defer span.End()

	reply, err := a.chat(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ""
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("failed to get a reply", "error", err)
		a.history.Push(conversations.Turn{Role: llms.RoleAssistant, Content: a.phrases.Apology})
		a.log.Append(conversations.SenderAssistant, a.phrases.Apology)
		return a.phrases.Apology
	}
	a.history.Push(conversations.Turn{Role: llms.RoleAssistant, Content: reply})

	spoken := reply
	var narration string
	if directive, directiveSpan, ok := actions.TryParse(reply); ok {
		span.SetAttributes(attribute.String("action.type", directive.Type))
		spoken = actions.Strip(reply, directiveSpan)
		if a.options.Router != nil {
			a.state.set(StateExecuting)
			narration = a.options.Router.Dispatch(ctx, directive).Narration
		}
	}

	spoken = strings.TrimSpace(spoken)
	if spoken != "" {
		a.log.Append(conversations.SenderAssistant, spoken)
	}
	spoken = strings.TrimSpace(spoken + " " + narration)
	if spoken == "" {
		spoken = a.phrases.Filler
		a.log.Append(conversations.SenderAssistant, spoken)
	}
	return spoken
}

func (a *Agent) chat(ctx context.Context) (string, error) {
	if a.options.Reasoner == nil {
		return "", errNoReasoner
	}

	ctx, cancel := context.WithTimeout(ctx, a.options.Timings.ChatTimeout)
	defer cancel()

	reply, err := a.options.Reasoner.Chat(ctx, a.buildRequest(ctx))
	if err != nil {
		return "", fmt.Errorf("error getting reply: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", llms.ErrEmptyResponse
	}
	return reply, nil
}

// buildRequest assembles the system prompt, any available context and the
// conversation history, in that order.
func (a *Agent) buildRequest(ctx context.Context) []llms.Message {
	systemPrompt := a.options.SystemPrompt
	if a.options.Router != nil {
		systemPrompt += "\n\n" + actions.SchemaPrompt()
	}
	messages := []llms.Message{llms.SystemMessage(systemPrompt)}

	addContext := func(name string, heading string, provider ContextProvider) {
		if provider == nil {
			return
		}
		content, err := provider(ctx)
		if err != nil {
			logger.Warn("failed to get context", "context", name, "error", err)
			trace.SpanFromContext(ctx).AddEvent("context unavailable",
				trace.WithAttributes(attribute.String("context", name)))
			return
		}
		if content = strings.TrimSpace(content); content != "" {
			messages = append(messages, llms.SystemMessage(heading+"\n"+content))
		}
	}

	addContext("screen", "Current screen content:", a.options.ScreenContext)
	addContext("web", "Last web page the user visited:", a.options.WebContext)
	addContext("notifications", "Recent notifications:", a.recentNotifications)
	addContext("device", "Device status:", a.options.DeviceSummary)

	return append(messages, a.history.Messages()...)
}

func (a *Agent) recentNotifications(ctx context.Context) (string, error) {
	if a.options.Notifications == nil {
		return "", nil
	}
	notifications, err := a.options.Notifications.Recent(ctx, notificationLimit)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, n := range notifications {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", n.App, n.Sender, n.Text)
	}
	return b.String(), nil
}

// announceNotifications speaks notifications newer than the last one
// announced.
func (a *Agent) announceNotifications(ctx context.Context) {
	if a.options.Notifications == nil {
		return
	}
	notifications, err := a.options.Notifications.Recent(ctx, notificationLimit)
	if err != nil {
		logger.Warn("failed to check notifications", "error", err)
		return
	}

	fresh := slices.DeleteFunc(slices.Clone(notifications), func(n Notification) bool {
		return !n.Timestamp.After(a.lastAnnounced)
	})
	if len(fresh) == 0 {
		return
	}
	slices.SortFunc(fresh, func(x, y Notification) int { return x.Timestamp.Compare(y.Timestamp) })
	a.lastAnnounced = fresh[len(fresh)-1].Timestamp

	announcements := make([]string, 0, len(fresh))
	for _, n := range fresh {
		announcements = append(announcements, a.phrases.notification(n))
	}
	a.say(ctx, strings.Join(announcements, " "))
}

// say speaks and logs something the agent came up with on its own.
func (a *Agent) say(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	a.log.Append(conversations.SenderAssistant, text)
	if a.state.get() != StateGreeting {
		a.state.set(StateSpeaking)
	}
	a.speak(ctx, text)
}

func (a *Agent) speak(ctx context.Context, text string) {
	if a.options.Speaker == nil {
		return
	}
	report := a.options.Speaker.Speak(ctx, text)
	if report.Exhausted {
		logger.Error("reply could not be spoken", "failures", len(report.Failures))
	}
}
