package cartesia

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-agent/core/audio/audiotest"
	"github.com/koscakluka/ema-agent/core/texttospeech"
)

type fakeService struct {
	upgrader websocket.Upgrader

	// onGenerate is called from the connection's read loop for every
	// generation request.
	onGenerate func(f *fakeService, conn *websocket.Conn, request map[string]any)

	mu          sync.Mutex
	writeMu     sync.Mutex
	connections []*websocket.Conn
	generations []map[string]any
	cancels     []map[string]any
}

func newFakeService(t *testing.T, onGenerate func(f *fakeService, conn *websocket.Conn, request map[string]any)) (*fakeService, *httptest.Server) {
	t.Helper()
	f := &fakeService{onGenerate: onGenerate}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.connections = append(f.connections, conn)
	f.mu.Unlock()

	for {
		var request map[string]any
		if err := conn.ReadJSON(&request); err != nil {
			return
		}

		f.mu.Lock()
		if _, ok := request["transcript"]; ok {
			f.generations = append(f.generations, request)
		} else {
			f.cancels = append(f.cancels, request)
		}
		f.mu.Unlock()

		if _, ok := request["transcript"]; ok && f.onGenerate != nil {
			f.onGenerate(f, conn, request)
		}
	}
}

func (f *fakeService) send(conn *websocket.Conn, msg any) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_ = conn.WriteJSON(msg)
}

func (f *fakeService) Generations() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.generations...)
}

func (f *fakeService) Cancels() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.cancels...)
}

func (f *fakeService) Connections() []*websocket.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*websocket.Conn(nil), f.connections...)
}

func chunk(contextID string, pcm string, done bool) map[string]any {
	return map[string]any{
		"type":       "chunk",
		"context_id": contextID,
		"data":       base64.StdEncoding.EncodeToString([]byte(pcm)),
		"done":       done,
	}
}

func websocketURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func newTestStreaming(server *httptest.Server, device *audiotest.Device, opts ...Option) *Streaming {
	opts = append([]Option{
		WithAPIKey("test-key"),
		WithWebsocketURL(websocketURL(server)),
		WithPlaybackDevice(device),
		WithVoice("voice-1"),
		WithTimings(Timings{
			ConnectTimeout:   time.Second,
			ConnectPoll:      5 * time.Millisecond,
			ReconnectBackoff: 50 * time.Millisecond,
			DrainTimeout:     time.Second,
			Grace:            time.Millisecond,
		}),
	}, opts...)
	return NewStreaming(opts...)
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

func TestStreamingPlaysChunksAndCompletes(t *testing.T) {
	_, server := newFakeService(t, func(f *fakeService, conn *websocket.Conn, request map[string]any) {
		contextID := request["context_id"].(string)
		f.send(conn, chunk(contextID, "abcd", false))
		f.send(conn, map[string]any{"type": "timestamps", "context_id": contextID})
		f.send(conn, map[string]any{"type": "something_new"})
		f.send(conn, chunk(contextID, "efgh", true))
	})
	device := &audiotest.Device{}
	streaming := newTestStreaming(server, device)
	defer streaming.Close()

	err := streaming.Speak(context.Background(), texttospeech.SynthesisRequest{Text: "Hello there", LanguageHint: "en"})
	if err != nil {
		t.Fatalf("unexpected speak error: %v", err)
	}

	sinks := device.Sinks()
	if len(sinks) != 1 {
		t.Fatalf("expected one sink, got %d", len(sinks))
	}
	if got := string(sinks[0].Written()); got != "abcdefgh" {
		t.Fatalf("expected audio %q, got %q", "abcdefgh", got)
	}
	if !sinks[0].IsClosed() {
		t.Fatalf("expected sink to be released after completion")
	}
}

func TestStreamingSendsGenerationRequest(t *testing.T) {
	fake, server := newFakeService(t, func(f *fakeService, conn *websocket.Conn, request map[string]any) {
		f.send(conn, map[string]any{"type": "done", "context_id": request["context_id"]})
	})
	device := &audiotest.Device{}
	streaming := newTestStreaming(server, device, WithModel("sonic-test"))
	defer streaming.Close()

	if err := streaming.Speak(context.Background(), texttospeech.SynthesisRequest{Text: "Hola", LanguageHint: "es"}); err != nil {
		t.Fatalf("unexpected speak error: %v", err)
	}

	generations := fake.Generations()
	if len(generations) != 1 {
		t.Fatalf("expected one generation request, got %d", len(generations))
	}
	request := generations[0]
	if request["model_id"] != "sonic-test" || request["transcript"] != "Hola" || request["language"] != "es" {
		t.Fatalf("unexpected generation request %v", request)
	}
	if request["continue"] != false {
		t.Fatalf("expected continue=false, got %v", request["continue"])
	}
	if contextID, _ := request["context_id"].(string); contextID == "" {
		t.Fatalf("expected a context id, got %v", request["context_id"])
	}
	voice, _ := request["voice"].(map[string]any)
	if voice["mode"] != "id" || voice["id"] != "voice-1" {
		t.Fatalf("unexpected voice %v", voice)
	}
	format, _ := request["output_format"].(map[string]any)
	if format["container"] != "raw" || format["encoding"] != "pcm_s16le" || format["sample_rate"] != float64(24000) {
		t.Fatalf("unexpected output format %v", format)
	}
}

func TestStreamingReusesConnection(t *testing.T) {
	fake, server := newFakeService(t, func(f *fakeService, conn *websocket.Conn, request map[string]any) {
		f.send(conn, chunk(request["context_id"].(string), "pcm", true))
	})
	device := &audiotest.Device{}
	streaming := newTestStreaming(server, device)
	defer streaming.Close()

	for i := 0; i < 3; i++ {
		if err := streaming.Speak(context.Background(), texttospeech.SynthesisRequest{Text: "again"}); err != nil {
			t.Fatalf("unexpected speak error on call %d: %v", i, err)
		}
	}

	if got := len(fake.Connections()); got != 1 {
		t.Fatalf("expected a single reused connection, got %d", got)
	}
	generations := fake.Generations()
	if generations[0]["context_id"] == generations[1]["context_id"] {
		t.Fatalf("expected a fresh context id per call")
	}
}

func TestStreamingIgnoresStaleDone(t *testing.T) {
	fake, server := newFakeService(t, nil)
	device := &audiotest.Device{}
	streaming := newTestStreaming(server, device)
	defer streaming.Close()

	first := make(chan error, 1)
	go func() { first <- streaming.Speak(context.Background(), texttospeech.SynthesisRequest{Text: "first"}) }()
	waitForCondition(t, time.Second, "first generation request", func() bool { return len(fake.Generations()) == 1 })
	firstContextID := fake.Generations()[0]["context_id"].(string)

	second := make(chan error, 1)
	go func() { second <- streaming.Speak(context.Background(), texttospeech.SynthesisRequest{Text: "second"}) }()

	select {
	case err := <-first:
		if !errors.Is(err, ErrSuperseded) {
			t.Fatalf("expected first call to be superseded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for first call to be superseded")
	}

	waitForCondition(t, time.Second, "second generation request", func() bool { return len(fake.Generations()) == 2 })
	secondContextID := fake.Generations()[1]["context_id"].(string)

	waitForCondition(t, time.Second, "cancel request for the first context", func() bool {
		for _, cancel := range fake.Cancels() {
			if cancel["context_id"] == firstContextID && cancel["cancel"] == true {
				return true
			}
		}
		return false
	})

	conn := fake.Connections()[0]
	fake.send(conn, chunk(firstContextID, "stale", false))
	fake.send(conn, map[string]any{"type": "done", "context_id": firstContextID})

	select {
	case err := <-second:
		t.Fatalf("expected second call to keep waiting after a stale done, got %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	fake.send(conn, chunk(secondContextID, "fresh", true))
	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("unexpected error from second call: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for second call")
	}

	sinks := device.Sinks()
	if len(sinks) != 2 {
		t.Fatalf("expected two sinks, got %d", len(sinks))
	}
	if device.Overlaps() != 0 {
		t.Fatalf("expected first sink to be released before the second was opened")
	}
	if got := string(sinks[0].Written()); got != "" {
		t.Fatalf("expected no audio written to the superseded sink, got %q", got)
	}
	if got := string(sinks[1].Written()); got != "fresh" {
		t.Fatalf("expected only fresh audio on the active sink, got %q", got)
	}
}

func TestStreamingErrorMessageFailsCall(t *testing.T) {
	_, server := newFakeService(t, func(f *fakeService, conn *websocket.Conn, request map[string]any) {
		contextID := request["context_id"].(string)
		f.send(conn, chunk(contextID, "partial", false))
		f.send(conn, map[string]any{"type": "error", "context_id": contextID, "error": "invalid voice", "status_code": 400})
	})
	device := &audiotest.Device{}
	streaming := newTestStreaming(server, device)
	defer streaming.Close()

	err := streaming.Speak(context.Background(), texttospeech.SynthesisRequest{Text: "hello"})
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected a remote error, got %v", err)
	}
	if remoteErr.StatusCode != 400 || remoteErr.Message != "invalid voice" {
		t.Fatalf("unexpected remote error %+v", remoteErr)
	}
	if device.OpenCount() != 0 {
		t.Fatalf("expected playback to be aborted, %d sinks still open", device.OpenCount())
	}
}

func TestStreamingConnectionLossFailsCallAndReconnects(t *testing.T) {
	var dropped sync.Once
	fake, server := newFakeService(t, func(f *fakeService, conn *websocket.Conn, request map[string]any) {
		drop := false
		dropped.Do(func() { drop = true })
		if drop {
			_ = conn.Close()
			return
		}
		f.send(conn, chunk(request["context_id"].(string), "ok", true))
	})
	device := &audiotest.Device{}
	streaming := newTestStreaming(server, device)
	defer streaming.Close()

	err := streaming.Speak(context.Background(), texttospeech.SynthesisRequest{Text: "first"})
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("expected connection lost error, got %v", err)
	}
	if device.OpenCount() != 0 {
		t.Fatalf("expected sink to be released after connection loss")
	}

	waitForCondition(t, time.Second, "automatic reconnect", func() bool { return len(fake.Connections()) == 2 })

	if err := streaming.Speak(context.Background(), texttospeech.SynthesisRequest{Text: "second"}); err != nil {
		t.Fatalf("expected the tier to recover after reconnecting, got %v", err)
	}
}

func TestStreamingCancellationReleasesSink(t *testing.T) {
	fake, server := newFakeService(t, func(f *fakeService, conn *websocket.Conn, request map[string]any) {
		f.send(conn, chunk(request["context_id"].(string), "never ending", false))
	})
	device := &audiotest.Device{}
	streaming := newTestStreaming(server, device)
	defer streaming.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- streaming.Speak(ctx, texttospeech.SynthesisRequest{Text: "long"}) }()
	waitForCondition(t, time.Second, "audio to start", func() bool {
		sinks := device.Sinks()
		return len(sinks) == 1 && sinks[0].Writes() > 0
	})

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for cancellation")
	}

	if !device.Sinks()[0].IsClosed() {
		t.Fatalf("expected sink to be released synchronously on cancellation")
	}
	waitForCondition(t, time.Second, "remote cancel request", func() bool { return len(fake.Cancels()) == 1 })
}

func TestStreamingFailsFastWhenDialFails(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	device := &audiotest.Device{}
	streaming := newTestStreaming(server, device, WithTimings(Timings{ConnectTimeout: 5 * time.Second}))
	defer streaming.Close()

	started := time.Now()
	err := streaming.Speak(context.Background(), texttospeech.SynthesisRequest{Text: "hello"})
	if err == nil {
		t.Fatalf("expected a connect error")
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("expected dial failure to be reported before the connect timeout, took %v", elapsed)
	}
	if len(device.Sinks()) != 0 {
		t.Fatalf("expected no sink to be opened without a connection")
	}
	server.Close()
}

func TestStreamingConnectTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	device := &audiotest.Device{}
	streaming := newTestStreaming(server, device, WithTimings(Timings{ConnectTimeout: 100 * time.Millisecond}))
	defer streaming.Close()

	started := time.Now()
	err := streaming.Speak(context.Background(), texttospeech.SynthesisRequest{Text: "hello"})
	if err == nil {
		t.Fatalf("expected the connect attempt to time out")
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("expected the connect wait to be bounded, took %v", elapsed)
	}
	if len(device.Sinks()) != 0 {
		t.Fatalf("expected no sink to be opened without a connection")
	}
}

func speakAsync(ctx context.Context, streaming *Streaming, text string) <-chan error {
	done := make(chan error, 1)
	go func() { done <- streaming.Speak(ctx, texttospeech.SynthesisRequest{Text: text}) }()
	return done
}

func TestStreamingSilentServiceTimesOut(t *testing.T) {
	fake, server := newFakeService(t, nil)
	device := &audiotest.Device{}
	streaming := newTestStreaming(server, device, WithTimings(Timings{GenerationTimeout: 150 * time.Millisecond}))
	defer streaming.Close()

	select {
	case err := <-speakAsync(context.Background(), streaming, "hello"):
		if !errors.Is(err, ErrGenerationTimeout) {
			t.Fatalf("expected a generation timeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("speak did not return against a silent service")
	}

	if device.OpenCount() != 0 {
		t.Fatalf("expected the sink to be released after the timeout")
	}
	waitForCondition(t, time.Second, "remote cancel for the stalled context", func() bool { return len(fake.Cancels()) == 1 })
}

func TestStreamingMissingDoneTimesOut(t *testing.T) {
	_, server := newFakeService(t, func(f *fakeService, conn *websocket.Conn, request map[string]any) {
		f.send(conn, chunk(request["context_id"].(string), "abcd", false))
	})
	device := &audiotest.Device{}
	streaming := newTestStreaming(server, device, WithTimings(Timings{GenerationTimeout: 150 * time.Millisecond}))
	defer streaming.Close()

	select {
	case err := <-speakAsync(context.Background(), streaming, "hello"):
		if !errors.Is(err, ErrGenerationTimeout) {
			t.Fatalf("expected a generation timeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("speak did not return when done never arrived")
	}

	if got := string(device.Sinks()[0].Written()); got != "abcd" {
		t.Fatalf("expected the received audio to be played, got %q", got)
	}
}

func TestStreamingChunksKeepGenerationAlive(t *testing.T) {
	_, server := newFakeService(t, func(f *fakeService, conn *websocket.Conn, request map[string]any) {
		contextID := request["context_id"].(string)
		go func() {
			for i := 0; i < 5; i++ {
				time.Sleep(60 * time.Millisecond)
				f.send(conn, chunk(contextID, "x", i == 4))
			}
		}()
	})
	device := &audiotest.Device{}
	streaming := newTestStreaming(server, device, WithTimings(Timings{GenerationTimeout: 150 * time.Millisecond}))
	defer streaming.Close()

	if err := streaming.Speak(context.Background(), texttospeech.SynthesisRequest{Text: "slow but steady"}); err != nil {
		t.Fatalf("expected chunks to reset the generation timeout, got %v", err)
	}
	if got := string(device.Sinks()[0].Written()); got != "xxxxx" {
		t.Fatalf("expected every chunk to be played, got %q", got)
	}
}

func TestStreamingDetectsHalfOpenConnection(t *testing.T) {
	release := make(chan struct{})
	// the service stops reading, so pings go unanswered
	_, server := newFakeService(t, func(f *fakeService, conn *websocket.Conn, request map[string]any) {
		<-release
	})
	t.Cleanup(func() { close(release) })

	device := &audiotest.Device{}
	streaming := newTestStreaming(server, device, WithTimings(Timings{
		KeepAlive:         20 * time.Millisecond,
		ReadTimeout:       150 * time.Millisecond,
		GenerationTimeout: 10 * time.Second,
	}))
	defer streaming.Close()

	select {
	case err := <-speakAsync(context.Background(), streaming, "hello"):
		if !errors.Is(err, ErrConnectionLost) {
			t.Fatalf("expected the silent connection to be dropped, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("speak did not return on a half-open connection")
	}
}

type fallbackTier struct {
	calls atomic.Int32
}

func (f *fallbackTier) Name() string { return "fallback" }

func (f *fallbackTier) Speak(context.Context, texttospeech.SynthesisRequest) error {
	f.calls.Add(1)
	return nil
}

func TestChainFallsBackWhenStreamingStalls(t *testing.T) {
	_, server := newFakeService(t, nil)
	streaming := newTestStreaming(server, &audiotest.Device{}, WithTimings(Timings{GenerationTimeout: 100 * time.Millisecond}))
	fallback := &fallbackTier{}
	chain := texttospeech.NewChain(texttospeech.WithStreaming(streaming), texttospeech.WithBatch(fallback))
	defer chain.Close()

	report := chain.Speak(context.Background(), "hello")

	if report.Tier != "fallback" || fallback.calls.Load() != 1 {
		t.Fatalf("expected the next tier to speak, got %+v", report)
	}
	if len(report.Failures) != 1 || !errors.Is(report.Failures[0].Err, ErrGenerationTimeout) {
		t.Fatalf("expected the stalled streaming tier to be reported, got %+v", report.Failures)
	}
}

func TestStreamingNotConfigured(t *testing.T) {
	streaming := NewStreaming()
	err := streaming.Speak(context.Background(), texttospeech.SynthesisRequest{Text: "hello"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured error, got %v", err)
	}
}
