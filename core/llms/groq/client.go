package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-agent/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultURL   = "https://api.groq.com/openai/v1/chat/completions"
	defaultModel = "llama-3.3-70b-versatile"

	endMessage  = "[DONE]"
	chunkPrefix = "data:"
)

// Client talks to any OpenAI compatible chat completions endpoint, Groq by
// default. Replies are streamed and collected into a single answer.
type Client struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
	timeout    time.Duration
}

type Option func(*Client)

func WithURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.url = url
		}
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout bounds a whole Chat call. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

func NewClient(apiKey string, model string, opts ...Option) *Client {
	if model == "" {
		model = defaultModel
	}
	client := &Client{
		apiKey:  apiKey,
		model:   model,
		url:     defaultURL,
		timeout: 60 * time.Second,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
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

	fail := func(err error) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var wireMessages []message
	if err := copier.Copy(&wireMessages, messages); err != nil {
		return fail(fmt.Errorf("error converting messages: %w", err))
	}

	requestBodyBytes, err := json.Marshal(requestBody{
		Model:         c.model,
		Messages:      wireMessages,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	})
	if err != nil {
		return fail(fmt.Errorf("error marshalling JSON: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return fail(fmt.Errorf("error creating HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	requestStarted := time.Now()
	span.AddEvent("request started")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(llms.ErrorForTransport(fmt.Errorf("error sending request: %w", err)))
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		detail := resp.Status
		if body, err := io.ReadAll(io.LimitReader(resp.Body, 4096)); err == nil {
			var parsed errorBody
			if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
				detail = parsed.Error.Message
			}
			span.SetAttributes(attribute.String("response.error", string(body)))
		}
		return fail(llms.ErrorForStatus(resp.StatusCode, fmt.Errorf("non-OK HTTP status: %s", detail)))
	}

	var reply strings.Builder
	firstToken := true
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))
		if len(chunk) == 0 {
			continue
		}
		if chunk == endMessage {
			break
		}

		var responseBody streamingResponseBody
		if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
			logger.Warn("failed to unmarshal chat chunk", "error", err)
			continue
		}

		if len(responseBody.Choices) > 0 {
			content := responseBody.Choices[0].Delta.Content
			if firstToken && content != "" {
				firstToken = false
				span.AddEvent("received first chunk")
				span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestStarted).Seconds()))
			}
			reply.WriteString(content)
		}

		if usage := responseBody.Usage; usage != nil {
			span.SetAttributes(
				attribute.Int("usage.prompt", usage.PromptTokens),
				attribute.Int("usage.completion", usage.CompletionTokens),
				attribute.Int("usage.total", usage.TotalTokens),
				attribute.Float64("usage.queue_time", usage.QueueTime),
				attribute.Float64("usage.total_time", usage.TotalTime),
			)
		} else if responseBody.XGroq != nil && responseBody.XGroq.Usage != nil {
			span.SetAttributes(attribute.Int("usage.total", responseBody.XGroq.Usage.TotalTokens))
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fail(llms.ErrorForTransport(ctx.Err()))
		}
		return fail(llms.ErrorForTransport(fmt.Errorf("error reading streamed response: %w", err)))
	}

	text := strings.TrimSpace(reply.String())
	if text == "" {
		return fail(llms.ErrEmptyResponse)
	}
	span.SetAttributes(attribute.Int("response.length", len(text)))
	return text, nil
}
