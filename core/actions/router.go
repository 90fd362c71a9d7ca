package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/koscakluka/ema-agent/core/conversations"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	ActionReadScreen  = "read_screen"
	ActionSendMessage = "send_message"
	ActionClick       = "click"
	ActionTypeText    = "type_text"
	ActionScroll      = "scroll"
	ActionNavigate    = "navigate"
	ActionWebSearch   = "web_search"
	ActionOpenURL     = "open_url"
	ActionDeviceInfo  = "device_info"
	ActionLaunchApp   = "launch_app"
)

const maxScreenNarration = 600

var (
	ErrUnknownAction       = errors.New("unknown action")
	ErrMissingParameter    = errors.New("missing action parameter")
	ErrMissingCollaborator = errors.New("action not supported on this device")
)

// Result is the outcome of a dispatched directive. Narration is always safe
// to speak; Err is for logs only.
type Result struct {
	Narration string
	Err       error
}

type RouterOptions struct {
	ScreenReader ScreenReader
	Messenger    Messenger
	UIAutomation UIAutomation
	Browser      Browser
	DeviceInfo   DeviceInfo
	AppLauncher  AppLauncher
	Log          *conversations.Log
	Narrations   Narrations
}

type RouterOption func(*RouterOptions)

func WithScreenReader(reader ScreenReader) RouterOption {
	return func(o *RouterOptions) { o.ScreenReader = reader }
}

func WithMessenger(messenger Messenger) RouterOption {
	return func(o *RouterOptions) { o.Messenger = messenger }
}

func WithUIAutomation(automation UIAutomation) RouterOption {
	return func(o *RouterOptions) { o.UIAutomation = automation }
}

func WithBrowser(browser Browser) RouterOption {
	return func(o *RouterOptions) { o.Browser = browser }
}

func WithDeviceInfo(info DeviceInfo) RouterOption {
	return func(o *RouterOptions) { o.DeviceInfo = info }
}

func WithAppLauncher(launcher AppLauncher) RouterOption {
	return func(o *RouterOptions) { o.AppLauncher = launcher }
}

// WithLanguage selects the language the router narrates in.
func WithLanguage(language string) RouterOption {
	return func(o *RouterOptions) { o.Narrations = NarrationsFor(language) }
}

// WithNarrations replaces the narrations entirely.
func WithNarrations(narrations Narrations) RouterOption {
	return func(o *RouterOptions) { o.Narrations = narrations }
}

// WithLog makes the router record a confirmation for every dispatch.
func WithLog(log *conversations.Log) RouterOption {
	return func(o *RouterOptions) { o.Log = log }
}

// Router turns directives into calls on the device collaborators.
type Router struct {
	options RouterOptions
}

func NewRouter(opts ...RouterOption) *Router {
	router := &Router{options: RouterOptions{Narrations: NarrationsFor("en")}}
	for _, opt := range opts {
		opt(&router.options)
	}
	return router
}

// Dispatch performs the directive. It never panics or returns an error to
// the caller; failures become an apology in the narration.
func (r *Router) Dispatch(ctx context.Context, d Directive) (result Result) {
	ctx, span := tracer.Start(ctx, "dispatch action")
	defer span.End()
	span.SetAttributes(attribute.String("action.type", d.Type))

	defer func() {
		if recovered := recover(); recovered != nil {
			result = Result{
				Narration: r.narrations().Panicked,
				Err:       fmt.Errorf("action %s panicked: %v", d.Type, recovered),
			}
		}
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, result.Err.Error())
		}
		if errors.Is(result.Err, ErrUnknownAction) {
			logger.Warn("ignoring unknown action", "action", d.Type)
			return
		}
		if result.Err != nil {
			logger.Warn("action failed", "action", d.Type, "error", result.Err)
		}
		if r != nil && r.options.Log != nil && result.Narration != "" {
			r.options.Log.Append(conversations.SenderAction, result.Narration)
		}
	}()

	if r == nil {
		return Result{Err: ErrMissingCollaborator}
	}

	switch d.Type {
	case ActionReadScreen:
		return r.readScreen(ctx)
	case ActionSendMessage:
		return r.sendMessage(ctx, d)
	case ActionClick:
		return r.click(ctx, d)
	case ActionTypeText:
		return r.typeText(ctx, d)
	case ActionScroll:
		return r.scroll(ctx, d)
	case ActionNavigate:
		return r.navigate(ctx, d)
	case ActionWebSearch:
		return r.webSearch(ctx, d)
	case ActionOpenURL:
		return r.openURL(ctx, d)
	case ActionDeviceInfo:
		return r.deviceInfo(ctx, d)
	case ActionLaunchApp:
		return r.launchApp(ctx, d)
	default:
		return Result{Err: fmt.Errorf("%w: %q", ErrUnknownAction, d.Type)}
	}
}

func (r *Router) narrations() Narrations {
	if r == nil {
		return NarrationsFor("en")
	}
	return r.options.Narrations
}

func (r *Router) readScreen(ctx context.Context) Result {
	n := r.options.Narrations
	if r.options.ScreenReader == nil {
		return n.unsupported(ActionReadScreen)
	}
	text, err := r.options.ScreenReader.ReadScreen(ctx)
	if err != nil {
		return n.failed(ActionReadScreen, err)
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return Result{Narration: n.ScreenEmpty}
	}
	if utf8.RuneCountInString(text) > maxScreenNarration {
		text = string([]rune(text)[:maxScreenNarration]) + "…"
	}
	return Result{Narration: fmt.Sprintf(n.ScreenText, text)}
}

func (r *Router) sendMessage(ctx context.Context, d Directive) Result {
	n := r.options.Narrations
	if r.options.Messenger == nil {
		return n.unsupported(ActionSendMessage)
	}
	recipient := d.Param("to", "recipient", "contact")
	text := d.Param("text", "message", "body")
	if recipient == "" {
		return n.missing(ActionSendMessage, "to")
	}
	if text == "" {
		return n.missing(ActionSendMessage, "text")
	}
	if err := r.options.Messenger.SendMessage(ctx, recipient, text); err != nil {
		return n.failed(ActionSendMessage, fmt.Errorf("error sending message to %s: %w", recipient, err))
	}
	return Result{Narration: fmt.Sprintf(n.MessageSent, recipient)}
}

func (r *Router) click(ctx context.Context, d Directive) Result {
	n := r.options.Narrations
	if r.options.UIAutomation == nil {
		return n.unsupported(ActionClick)
	}
	label := d.Param("label", "target", "element")
	if label == "" {
		return n.missing(ActionClick, "label")
	}
	if err := r.options.UIAutomation.Click(ctx, label); err != nil {
		return n.failed(ActionClick, fmt.Errorf("error clicking %q: %w", label, err))
	}
	return Result{Narration: fmt.Sprintf(n.Clicked, label)}
}

func (r *Router) typeText(ctx context.Context, d Directive) Result {
	n := r.options.Narrations
	if r.options.UIAutomation == nil {
		return n.unsupported(ActionTypeText)
	}
	text := d.Param("text", "value")
	if text == "" {
		return n.missing(ActionTypeText, "text")
	}
	if err := r.options.UIAutomation.TypeText(ctx, text); err != nil {
		return n.failed(ActionTypeText, err)
	}
	return Result{Narration: n.Typed}
}

func (r *Router) scroll(ctx context.Context, d Directive) Result {
	n := r.options.Narrations
	if r.options.UIAutomation == nil {
		return n.unsupported(ActionScroll)
	}
	direction := strings.ToLower(d.Param("direction"))
	if direction == "" {
		direction = "down"
	}
	if err := r.options.UIAutomation.Scroll(ctx, direction); err != nil {
		return n.failed(ActionScroll, fmt.Errorf("error scrolling %s: %w", direction, err))
	}
	return Result{Narration: fmt.Sprintf(n.Scrolled, n.word(direction))}
}

func (r *Router) navigate(ctx context.Context, d Directive) Result {
	n := r.options.Narrations
	if r.options.UIAutomation == nil {
		return n.unsupported(ActionNavigate)
	}
	destination := d.Param("destination", "to", "target")
	if destination == "" {
		return n.missing(ActionNavigate, "destination")
	}
	if err := r.options.UIAutomation.Navigate(ctx, destination); err != nil {
		return n.failed(ActionNavigate, fmt.Errorf("error navigating to %s: %w", destination, err))
	}
	if destination == "back" || destination == "home" {
		return Result{Narration: fmt.Sprintf(n.Going, n.word(destination))}
	}
	return Result{Narration: fmt.Sprintf(n.Opened, destination)}
}

func (r *Router) webSearch(ctx context.Context, d Directive) Result {
	n := r.options.Narrations
	if r.options.Browser == nil {
		return n.unsupported(ActionWebSearch)
	}
	query := d.Param("query", "q", "text")
	if query == "" {
		return n.missing(ActionWebSearch, "query")
	}
	if err := r.options.Browser.Search(ctx, query); err != nil {
		return n.failed(ActionWebSearch, err)
	}
	return Result{Narration: fmt.Sprintf(n.SearchResults, query)}
}

func (r *Router) openURL(ctx context.Context, d Directive) Result {
	n := r.options.Narrations
	if r.options.Browser == nil {
		return n.unsupported(ActionOpenURL)
	}
	url := d.Param("url", "link")
	if url == "" {
		return n.missing(ActionOpenURL, "url")
	}
	if err := r.options.Browser.OpenURL(ctx, url); err != nil {
		return n.failed(ActionOpenURL, err)
	}
	return Result{Narration: n.OpeningPage}
}

func (r *Router) deviceInfo(ctx context.Context, d Directive) Result {
	n := r.options.Narrations
	if r.options.DeviceInfo == nil {
		return n.unsupported(ActionDeviceInfo)
	}

	switch strings.ToLower(d.Param("type", "kind", "query")) {
	case "battery":
		battery, err := r.options.DeviceInfo.Battery(ctx)
		if err != nil {
			return n.failed(ActionDeviceInfo, err)
		}
		state := n.NotCharging
		if battery.Charging {
			state = n.Charging
		}
		return Result{Narration: fmt.Sprintf(n.Battery, battery.Percent, state)}
	default:
		summary, err := r.options.DeviceInfo.Summary(ctx)
		if err != nil {
			return n.failed(ActionDeviceInfo, err)
		}
		return Result{Narration: summary}
	}
}

func (r *Router) launchApp(ctx context.Context, d Directive) Result {
	n := r.options.Narrations
	if r.options.AppLauncher == nil {
		return n.unsupported(ActionLaunchApp)
	}
	name := d.Param("name", "app", "package")
	if name == "" {
		return n.missing(ActionLaunchApp, "name")
	}
	if err := r.options.AppLauncher.Launch(ctx, name); err != nil {
		return n.failed(ActionLaunchApp, fmt.Errorf("error launching %s: %w", name, err))
	}
	return Result{Narration: fmt.Sprintf(n.OpeningApp, name)}
}
