package deepgram

import (
	"encoding/json"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
)

// transcriptAccumulator collects final transcript segments until Deepgram
// signals the end of the utterance.
type transcriptAccumulator struct {
	mu             sync.Mutex
	segments       []string
	unendedSegment bool
}

// Process handles one text message and reports whether it produced an event
// worth acting on.
func (a *transcriptAccumulator) Process(msg []byte) (listenEvent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return listenEvent{}, false
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram transcript", "error", err)
			return listenEvent{}, false
		}
		if !msgResp.IsFinal {
			return listenEvent{}, false
		}

		if len(msgResp.Channel.Alternatives) > 0 {
			if transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript); transcript != "" {
				a.segments = append(a.segments, transcript)
				a.unendedSegment = true
			}
		}
		if msgResp.SpeechFinal && len(a.segments) > 0 {
			return listenEvent{done: true, transcript: a.flush()}, true
		}

	case api.TypeUtteranceEndResponse:
		if a.unendedSegment && len(a.segments) > 0 {
			return listenEvent{done: true, transcript: a.flush()}, true
		}

	case api.TypeSpeechStartedResponse:
		return listenEvent{speechStarted: true}, true
	}

	return listenEvent{}, false
}

// Flush returns everything collected so far and resets the accumulator.
func (a *transcriptAccumulator) Flush() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flush()
}

func (a *transcriptAccumulator) flush() string {
	transcript := strings.Join(a.segments, " ")
	a.segments = nil
	a.unendedSegment = false
	return transcript
}
