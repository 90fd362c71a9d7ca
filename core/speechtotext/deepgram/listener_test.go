package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-agent/core/audio"
	"github.com/koscakluka/ema-agent/core/audio/audiotest"
	"github.com/koscakluka/ema-agent/core/speechtotext"
)

func finalMessage(transcript string, speechFinal bool) string {
	final := "false"
	if speechFinal {
		final = "true"
	}
	return `{"type":"Results","is_final":true,"speech_final":` + final +
		`,"channel":{"alternatives":[{"transcript":"` + transcript + `"}]}}`
}

func TestTranscriptAccumulatorJoinsFinalSegments(t *testing.T) {
	accumulator := &transcriptAccumulator{}

	if event, ok := accumulator.Process([]byte(`{"type":"SpeechStarted"}`)); !ok || !event.speechStarted {
		t.Fatalf("expected speech started event, got %+v (%v)", event, ok)
	}
	if _, ok := accumulator.Process([]byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"what"}]}}`)); ok {
		t.Fatalf("interim results should not produce an event")
	}
	if _, ok := accumulator.Process([]byte(finalMessage("what time", false))); ok {
		t.Fatalf("non speech-final result should not finish the utterance")
	}

	event, ok := accumulator.Process([]byte(finalMessage("is it", true)))
	if !ok || !event.done {
		t.Fatalf("expected done event, got %+v (%v)", event, ok)
	}
	if event.transcript != "what time is it" {
		t.Fatalf("unexpected transcript %q", event.transcript)
	}
	if rest := accumulator.Flush(); rest != "" {
		t.Fatalf("expected accumulator to be reset, got %q", rest)
	}
}

func TestTranscriptAccumulatorFinishesOnUtteranceEnd(t *testing.T) {
	accumulator := &transcriptAccumulator{}

	if _, ok := accumulator.Process([]byte(`{"type":"UtteranceEnd"}`)); ok {
		t.Fatalf("utterance end without speech should be ignored")
	}
	accumulator.Process([]byte(finalMessage("open the browser", false)))

	event, ok := accumulator.Process([]byte(`{"type":"UtteranceEnd"}`))
	if !ok || !event.done || event.transcript != "open the browser" {
		t.Fatalf("unexpected event %+v (%v)", event, ok)
	}
}

func TestTranscriptAccumulatorIgnoresGarbage(t *testing.T) {
	accumulator := &transcriptAccumulator{}
	if _, ok := accumulator.Process([]byte("not json")); ok {
		t.Fatalf("garbage should not produce an event")
	}
	if _, ok := accumulator.Process([]byte(`{"type":"Metadata"}`)); ok {
		t.Fatalf("metadata should not produce an event")
	}
}

type fakeDeepgram struct {
	server   *httptest.Server
	mu       sync.Mutex
	query    string
	auth     string
	audio    int
	closed   bool
	messages []string
}

func newFakeDeepgram(t *testing.T, messages ...string) *fakeDeepgram {
	t.Helper()
	fake := &fakeDeepgram{messages: messages}
	upgrader := websocket.Upgrader{}
	fake.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fake.mu.Lock()
		fake.query = r.URL.RawQuery
		fake.auth = r.Header.Get("Authorization")
		fake.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sent := false
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			fake.mu.Lock()
			if msgType == websocket.BinaryMessage {
				fake.audio++
			} else if strings.Contains(string(msg), "CloseStream") {
				fake.closed = true
			}
			fake.mu.Unlock()

			if !sent && msgType == websocket.BinaryMessage {
				sent = true
				for _, message := range fake.messages {
					if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
						return
					}
				}
			}
		}
	}))
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeDeepgram) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestListenReturnsTranscript(t *testing.T) {
	fake := newFakeDeepgram(t,
		`{"type":"SpeechStarted"}`,
		finalMessage("what is my battery", true),
	)
	microphone := &audiotest.Microphone{Chunks: [][]byte{make([]byte, 320), make([]byte, 320)}}
	listener := NewListener("secret", microphone, WithURL(fake.url()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	transcript, err := listener.Listen(ctx, speechtotext.ListenOptions{TrailingSilence: 500 * time.Millisecond})
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	if transcript != "what is my battery" {
		t.Fatalf("unexpected transcript %q", transcript)
	}

	fake.mu.Lock()
	query, auth := fake.query, fake.auth
	fake.mu.Unlock()
	if auth != "Token secret" {
		t.Fatalf("unexpected authorization header %q", auth)
	}
	for _, param := range []string{"encoding=linear16", "sample_rate=16000", "utterance_end_ms=1000", "model=nova-3", "language=en-US"} {
		if !strings.Contains(query, param) {
			t.Fatalf("expected %q in query %q", param, query)
		}
	}

	starts, stops := microphone.Stats()
	if starts != 1 || stops != 1 {
		t.Fatalf("expected capture to start and stop once, got %d/%d", starts, stops)
	}
	waitForCondition(t, time.Second, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return fake.closed
	})
}

func TestListenReturnsEmptyWhenNobodySpeaks(t *testing.T) {
	fake := newFakeDeepgram(t)
	microphone := &audiotest.Microphone{Chunks: [][]byte{make([]byte, 320)}}
	listener := NewListener("secret", microphone, WithURL(fake.url()))

	transcript, err := listener.Listen(context.Background(), speechtotext.ListenOptions{Window: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	if transcript != "" {
		t.Fatalf("expected empty transcript, got %q", transcript)
	}
}

func TestListenStopsOnCancel(t *testing.T) {
	fake := newFakeDeepgram(t, `{"type":"SpeechStarted"}`)
	microphone := &audiotest.Microphone{Chunks: [][]byte{make([]byte, 320)}}
	listener := NewListener("secret", microphone, WithURL(fake.url()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := listener.Listen(ctx, speechtotext.ListenOptions{})
		done <- err
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("listen did not return after cancel")
	}
}

func TestListenRequiresConfiguration(t *testing.T) {
	listener := NewListener("", &audiotest.Microphone{})
	if _, err := listener.Listen(context.Background(), speechtotext.ListenOptions{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStreamEncodingFor(t *testing.T) {
	if _, err := streamEncodingFor(audio.GetDefaultEncodingInfo()); err != nil {
		t.Fatalf("default capture encoding should be supported: %v", err)
	}
	if _, err := streamEncodingFor(audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingMulaw}); err == nil {
		t.Fatalf("expected mulaw at 16 kHz to be rejected")
	}
	if _, err := streamEncodingFor(audio.EncodingInfo{SampleRate: 44100, Format: audio.EncodingLinear16}); err == nil {
		t.Fatalf("expected 44.1 kHz to be rejected")
	}
}
