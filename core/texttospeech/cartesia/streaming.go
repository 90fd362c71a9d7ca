package cartesia

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-agent/core/audio"
	"github.com/koscakluka/ema-agent/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotConfigured  = errors.New("cartesia synthesizer not configured")
	ErrConnectTimeout = errors.New("timed out connecting to cartesia")
	ErrConnectionLost = errors.New("connection to cartesia lost")
	ErrSuperseded     = errors.New("speech superseded by a newer request")
	ErrClosed         = errors.New("cartesia synthesizer closed")

	// ErrGenerationTimeout is returned when the service stops sending audio
	// for an accepted generation.
	ErrGenerationTimeout = errors.New("cartesia generation stalled")
)

// RemoteError is an error message sent by the synthesis service for a
// generation.
type RemoteError struct {
	Message    string
	StatusCode int
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("cartesia error %d: %s", e.StatusCode, e.Message)
	}
	return "cartesia error: " + e.Message
}

type connectionState int

const (
	connectionIdle connectionState = iota
	connectionConnecting
	connectionConnected
)

func (s connectionState) String() string {
	switch s {
	case connectionConnecting:
		return "connecting"
	case connectionConnected:
		return "connected"
	default:
		return "idle"
	}
}

// Streaming speaks text over a persistent websocket, playing audio chunks as
// they arrive. The connection is opened on first use and reused across Speak
// calls; only the most recent call is ever allowed to play.
type Streaming struct {
	options Options

	mu             sync.Mutex
	conn           *websocket.Conn
	state          connectionState
	lastConnectErr error
	connectAttempt uint64
	failedAttempt  uint64
	active         *session
	reconnectTimer *time.Timer
	closed         bool

	writeMu sync.Mutex
}

// session is one generation tied to a context id. It resolves exactly once.
type session struct {
	contextID string
	sink      audio.PlaybackSink
	sentAt    time.Time
	span      trace.Span
	// stall fires when no chunk arrived within the generation timeout.
	stall *time.Timer

	isSpeaking bool
	finishing  bool

	result chan error
	once   sync.Once
}

func (s *session) resolve(err error) {
	s.once.Do(func() { s.result <- err })
}

func NewStreaming(opts ...Option) *Streaming {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Streaming{options: options}
}

func (s *Streaming) Name() string { return "streaming" }

func (s *Streaming) Speak(ctx context.Context, request texttospeech.SynthesisRequest) error {
	ctx, span := tracer.Start(ctx, "streaming speak")
	defer span.End()

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if s.options.APIKey == "" || s.options.Device == nil {
		return fail(ErrNotConfigured)
	}

	// the previous generation must stop playing before anything else happens
	s.supersedeActive()

	if err := s.ensureConnected(ctx); err != nil {
		return fail(err)
	}

	sink, err := s.options.Device.OpenSink(ctx, s.options.encoding())
	if err != nil {
		return fail(fmt.Errorf("failed to open playback sink: %w", err))
	}

	sess := &session{
		contextID: uuid.NewString(),
		sink:      sink,
		span:      span,
		result:    make(chan error, 1),
	}
	span.SetAttributes(attribute.String("speech.context_id", sess.contextID))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sink.Close()
		return fail(ErrClosed)
	}
	s.active = sess
	sess.sentAt = time.Now()
	sess.stall = time.AfterFunc(s.options.Timings.GenerationTimeout, func() { s.stalled(sess) })
	s.mu.Unlock()

	if err := s.send(generationRequest{
		ModelID:      s.options.ModelID,
		Transcript:   request.Text,
		Voice:        s.options.voiceFor(request.VoiceID),
		OutputFormat: outputFormat{Container: "raw", Encoding: s.options.encoding().Format.PCMName(), SampleRate: s.options.SampleRate},
		Language:     request.LanguageHint,
		ContextID:    sess.contextID,
		Continue:     false,
	}); err != nil {
		s.endSession(sess, fmt.Errorf("failed to send generation request: %w", err))
		return fail(<-sess.result)
	}

	select {
	case err := <-sess.result:
		if err != nil {
			return fail(err)
		}
		return nil
	case <-ctx.Done():
		s.abandon(sess, ctx.Err())
		return ctx.Err()
	}
}

// supersedeActive cancels whatever generation is still playing.
func (s *Streaming) supersedeActive() {
	s.mu.Lock()
	prev := s.active
	s.mu.Unlock()
	if prev != nil {
		s.abandon(prev, ErrSuperseded)
	}
}

// abandon stops a session locally and asks the service to drop its context.
// The sink is closed before abandon returns.
func (s *Streaming) abandon(sess *session, reason error) {
	if !s.endSession(sess, reason) {
		return
	}
	if err := s.send(cancelRequest{ContextID: sess.contextID, Cancel: true}); err != nil {
		logger.Debug("failed to send cancel request", "context_id", sess.contextID, "error", err)
	}
}

// endSession releases the session's sink and resolves it with err. It
// reports false if the session was no longer active.
func (s *Streaming) endSession(sess *session, err error) bool {
	s.mu.Lock()
	if s.active != sess {
		s.mu.Unlock()
		return false
	}
	s.active = nil
	if sess.stall != nil {
		sess.stall.Stop()
	}
	closeErr := sess.sink.Close()
	s.mu.Unlock()

	if closeErr != nil {
		logger.Warn("failed to close playback sink", "context_id", sess.contextID, "error", closeErr)
	}
	sess.resolve(err)
	return true
}

// stalled gives up on a generation the service stopped feeding. A session
// that is already draining is left alone.
func (s *Streaming) stalled(sess *session) {
	s.mu.Lock()
	if s.active != sess || sess.finishing {
		s.mu.Unlock()
		return
	}
	sess.finishing = true
	s.mu.Unlock()

	timeout := s.options.Timings.GenerationTimeout
	logger.Warn("cartesia generation stalled", "context_id", sess.contextID, "timeout", timeout)
	sess.span.AddEvent("generation stalled")
	s.abandon(sess, fmt.Errorf("%w: no audio for %v", ErrGenerationTimeout, timeout))
}

func (s *Streaming) send(msg any) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrConnectionLost
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// ensureConnected starts a connection if there is none and waits until it
// is established or the connect timeout passes.
func (s *Streaming) ensureConnected(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == connectionIdle {
		s.startConnectLocked()
	}
	attempt := s.connectAttempt
	s.mu.Unlock()

	timeout := time.NewTimer(s.options.Timings.ConnectTimeout)
	defer timeout.Stop()
	poll := time.NewTicker(s.options.Timings.ConnectPoll)
	defer poll.Stop()

	for {
		s.mu.Lock()
		state, failed, lastErr := s.state, s.failedAttempt, s.lastConnectErr
		s.mu.Unlock()

		if state == connectionConnected {
			return nil
		}
		if state == connectionIdle && failed >= attempt {
			return fmt.Errorf("failed to connect to cartesia: %w", lastErr)
		}

		select {
		case <-poll.C:
		case <-timeout.C:
			return ErrConnectTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Streaming) startConnectLocked() {
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.state = connectionConnecting
	s.connectAttempt++
	go s.connect(s.connectAttempt)
}

func (s *Streaming) connect(attempt uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.options.Timings.ConnectTimeout)
	defer cancel()

	u, err := url.Parse(s.options.WebsocketURL)
	if err == nil {
		query := u.Query()
		query.Set("api_key", s.options.APIKey)
		query.Set("cartesia_version", s.options.Version)
		u.RawQuery = query.Encode()
	}

	var conn *websocket.Conn
	if err == nil {
		conn, _, err = s.options.Dialer.DialContext(ctx, u.String(), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		logger.Warn("failed to connect to cartesia", "error", err)
		s.state = connectionIdle
		s.lastConnectErr = err
		s.failedAttempt = attempt
		return
	}
	if s.closed {
		_ = conn.Close()
		s.state = connectionIdle
		return
	}

	readTimeout := s.options.Timings.ReadTimeout
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	s.conn = conn
	s.state = connectionConnected
	stop := make(chan struct{})
	go s.readMessages(conn, stop)
	go s.keepAlive(conn, stop)
	logger.Debug("connected to cartesia")
}

func (s *Streaming) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.options.Timings.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.options.Timings.ConnectTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logger.Debug("keep-alive ping failed", "error", err)
			}
		}
	}
}

func (s *Streaming) readMessages(conn *websocket.Conn, stop chan struct{}) {
	defer close(stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.connectionLost(conn, err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.options.Timings.ReadTimeout))

		var msg response
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("failed to unmarshal cartesia message", "error", err)
			continue
		}

		switch msg.Type {
		case responseTypeChunk:
			s.handleChunk(msg)
		case responseTypeDone:
			s.handleDone(msg.ContextID)
		case responseTypeError:
			s.handleError(msg)
		case responseTypeTimestamps:
		default:
			logger.Debug("ignoring unknown cartesia message", "type", msg.Type)
		}
	}
}

func (s *Streaming) handleChunk(msg response) {
	pcm, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		logger.Warn("failed to decode audio chunk", "context_id", msg.ContextID, "error", err)
		return
	}

	s.mu.Lock()
	sess := s.active
	if sess == nil || sess.contextID != msg.ContextID {
		s.mu.Unlock()
		return
	}
	if !sess.isSpeaking && len(pcm) > 0 {
		sess.isSpeaking = true
		elapsed := time.Since(sess.sentAt)
		timeToFirstAudio.Record(context.Background(), elapsed.Seconds())
		sess.span.AddEvent("received first audio")
		sess.span.SetAttributes(attribute.Float64("speech.time_to_first_audio", elapsed.Seconds()))
	}
	if !sess.finishing {
		sess.stall.Reset(s.options.Timings.GenerationTimeout)
	}
	// writes only ever go to the active session's sink, under the lock that
	// guards its release
	var writeErr error
	if len(pcm) > 0 {
		writeErr = sess.sink.Write(pcm)
	}
	s.mu.Unlock()

	if writeErr != nil {
		s.abandon(sess, fmt.Errorf("failed to write audio: %w", writeErr))
		return
	}
	if msg.Done {
		s.handleDone(msg.ContextID)
	}
}

func (s *Streaming) handleDone(contextID string) {
	s.mu.Lock()
	sess := s.active
	if sess == nil || sess.contextID != contextID || sess.finishing {
		s.mu.Unlock()
		return
	}
	sess.finishing = true
	sess.stall.Stop()
	s.mu.Unlock()

	go s.finish(sess)
}

// finish lets the buffered audio play out before resolving the session.
func (s *Streaming) finish(sess *session) {
	ctx, cancel := context.WithTimeout(context.Background(), s.options.Timings.DrainTimeout)
	defer cancel()

	if err := sess.sink.Drain(ctx); err != nil {
		if errors.Is(err, audio.ErrSinkClosed) {
			return
		}
		logger.Warn("playback did not drain in time", "context_id", sess.contextID, "error", err)
	}

	grace := time.NewTimer(s.options.Timings.Grace)
	defer grace.Stop()
	<-grace.C

	s.endSession(sess, nil)
}

func (s *Streaming) handleError(msg response) {
	s.mu.Lock()
	sess := s.active
	s.mu.Unlock()
	if sess == nil || (msg.ContextID != "" && sess.contextID != msg.ContextID) {
		logger.Debug("ignoring cartesia error for inactive context", "context_id", msg.ContextID, "error", msg.Error)
		return
	}

	s.endSession(sess, &RemoteError{Message: msg.Error, StatusCode: msg.StatusCode})
}

func (s *Streaming) connectionLost(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = connectionIdle
	sess := s.active
	closed := s.closed
	if !closed {
		s.reconnectTimer = time.AfterFunc(s.options.Timings.ReconnectBackoff, s.reconnect)
	}
	s.mu.Unlock()

	_ = conn.Close()
	if !closed {
		logger.Warn("lost connection to cartesia, reconnecting", "error", err, "backoff", s.options.Timings.ReconnectBackoff)
	}
	if sess != nil {
		s.endSession(sess, fmt.Errorf("%w: %v", ErrConnectionLost, err))
	}
}

func (s *Streaming) reconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != connectionIdle {
		return
	}
	s.startConnectLocked()
}

// Close cancels any active generation and closes the connection. The
// synthesizer cannot be used afterwards.
func (s *Streaming) Close() error {
	s.supersedeActive()

	s.mu.Lock()
	s.closed = true
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = connectionIdle
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close cartesia connection: %w", err)
	}
	return nil
}
