package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/koscakluka/ema-agent/core/llms"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// Client is a reasoning backend built on the official OpenAI SDK.
type Client struct {
	model   string
	timeout time.Duration
	client  openai.Client
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

type Option func(*Options)

func WithBaseURL(baseURL string) Option {
	return func(o *Options) {
		if baseURL != "" {
			o.BaseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		if client != nil {
			o.HTTPClient = client
		}
	}
}

// WithTimeout bounds a whole Chat call. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) { o.Timeout = timeout }
}

func NewClient(apiKey string, model string, opts ...Option) *Client {
	options := Options{
		BaseURL:    defaultBaseURL,
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Timeout:    60 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if model == "" {
		model = defaultModel
	}

	requestOptions := []option.RequestOption{
		option.WithBaseURL(options.BaseURL),
		option.WithHTTPClient(options.HTTPClient),
		// a failed turn is answered with an apology, retrying only delays it
		option.WithMaxRetries(0),
	}
	if apiKey != "" {
		requestOptions = append(requestOptions, option.WithAPIKey(apiKey))
	}

	return &Client{
		model:   model,
		timeout: options.Timeout,
		client:  openai.NewClient(requestOptions...),
	}
}

func (c *Client) Chat(ctx context.Context, messages []llms.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.model", c.model),
		attribute.Int("request.messages", len(messages)),
	)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: toChatMessages(messages),
	})
	if err != nil {
		err = toChatError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		span.SetStatus(codes.Error, llms.ErrEmptyResponse.Error())
		return "", llms.ErrEmptyResponse
	}

	span.SetAttributes(
		attribute.String("response.finish_reason", resp.Choices[0].FinishReason),
		attribute.Int64("usage.prompt", resp.Usage.PromptTokens),
		attribute.Int64("usage.completion", resp.Usage.CompletionTokens),
		attribute.Int64("usage.total", resp.Usage.TotalTokens),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func toChatMessages(messages []llms.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llms.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case llms.RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			assistant.Content.OfString = openai.String(msg.Content)
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func toChatError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llms.ErrorForStatus(apiErr.StatusCode, fmt.Errorf("openai request failed (status=%d): %s", apiErr.StatusCode, strings.TrimSpace(apiErr.Message)))
	}
	return llms.ErrorForTransport(fmt.Errorf("openai request failed: %w", err))
}
