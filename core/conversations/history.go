package conversations

import (
	"sync"

	"github.com/koscakluka/ema-agent/core/llms"
)

const DefaultHistoryLimit = 20

// Turn is one message of the conversation kept for the reasoning backend.
type Turn struct {
	Role    llms.Role
	Content string
}

// History is an ordered conversation bounded to a fixed number of turns.
// Once full, the oldest turn is evicted first.
type History struct {
	mu    sync.RWMutex
	limit int
	turns []Turn
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Push appends a turn, evicting the oldest ones past the limit.
func (h *History) Push(turn Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = append(h.turns, turn)
	if overflow := len(h.turns) - h.limit; overflow > 0 {
		h.turns = append(h.turns[:0:0], h.turns[overflow:]...)
	}
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

func (h *History) Limit() int { return h.limit }

// Snapshot returns a copy of the stored turns, oldest first.
func (h *History) Snapshot() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Turn(nil), h.turns...)
}

// Values is an iterator that goes over a snapshot of the stored turns
// starting from the earliest towards the latest
func (h *History) Values(yield func(Turn) bool) {
	for _, turn := range h.Snapshot() {
		if !yield(turn) {
			return
		}
	}
}

// Messages converts the stored turns into backend messages.
func (h *History) Messages() []llms.Message {
	messages := make([]llms.Message, 0, h.Len())
	for turn := range h.Values {
		messages = append(messages, llms.Message{Role: turn.Role, Content: turn.Content})
	}
	return messages
}
