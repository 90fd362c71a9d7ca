package openai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koscakluka/ema-agent/core/llms"
)

func TestChatMapsMessagesAndReturnsReply(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-1",
			"object":"chat.completion",
			"created":1,
			"model":"gpt-test",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  Sure thing.  "}}],
			"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}
		}`))
	}))
	defer server.Close()

	client := NewClient("key", "gpt-test", WithBaseURL(server.URL))
	reply, err := client.Chat(t.Context(), []llms.Message{
		llms.SystemMessage("system"),
		llms.UserMessage("question"),
		llms.AssistantMessage("answer"),
		llms.UserMessage("follow up"),
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply != "Sure thing." {
		t.Fatalf("reply = %q, want %q", reply, "Sure thing.")
	}

	if body["model"] != "gpt-test" {
		t.Fatalf("model = %v, want gpt-test", body["model"])
	}
	messages, _ := body["messages"].([]any)
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(messages))
	}
	for i, role := range []string{"system", "user", "assistant", "user"} {
		msg, _ := messages[i].(map[string]any)
		if msg["role"] != role {
			t.Fatalf("messages[%d].role = %v, want %s", i, msg["role"], role)
		}
	}
}

func TestChatAPIErrorIsReadable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	client := NewClient("key", "gpt-test", WithBaseURL(server.URL))
	_, err := client.Chat(t.Context(), []llms.Message{llms.UserMessage("hi")})

	var chatErr *llms.ChatError
	if !errors.As(err, &chatErr) {
		t.Fatalf("expected a chat error, got %v", err)
	}
	if chatErr.Error() != "the assistant service is unavailable" {
		t.Fatalf("unexpected message %q", chatErr.Error())
	}
}

func TestChatEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer server.Close()

	_, err := NewClient("key", "m", WithBaseURL(server.URL)).Chat(t.Context(), []llms.Message{llms.UserMessage("hi")})
	if !errors.Is(err, llms.ErrEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
}
