package conversations

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultReplayLimit = 50

	subscriberBuffer = 64
)

// Well known senders of log entries.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
	SenderAction    = "action"
	SenderSystem    = "system"
)

// Entry is an immutable record of something said or done in the
// conversation.
type Entry struct {
	ID        string
	Sender    string
	Text      string
	Timestamp time.Time
}

// Log is an append-only conversation log broadcast to any number of
// subscribers. The most recent entries are kept and replayed to late
// subscribers before live entries.
type Log struct {
	mu          sync.Mutex
	replayLimit int
	replay      []Entry
	subscribers map[*subscriber]struct{}
	now         func() time.Time
}

type subscriber struct {
	entries chan Entry
	dropped int
}

func NewLog(replayLimit int) *Log {
	if replayLimit <= 0 {
		replayLimit = DefaultReplayLimit
	}
	return &Log{
		replayLimit: replayLimit,
		subscribers: map[*subscriber]struct{}{},
		now:         time.Now,
	}
}

// Append records a new entry and broadcasts it. Slow subscribers miss
// entries rather than block the writer.
func (l *Log) Append(sender string, text string) Entry {
	if l == nil {
		return Entry{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{ID: uuid.NewString(), Sender: sender, Text: text, Timestamp: l.now()}
	l.replay = append(l.replay, entry)
	if overflow := len(l.replay) - l.replayLimit; overflow > 0 {
		l.replay = append(l.replay[:0:0], l.replay[overflow:]...)
	}

	for sub := range l.subscribers {
		select {
		case sub.entries <- entry:
		default:
			sub.dropped++
			logger.Debug("dropped log entry for slow subscriber", "dropped", sub.dropped)
		}
	}
	return entry
}

// Entries returns the replay buffer, oldest first.
func (l *Log) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.replay...)
}

// Subscribe returns a channel that first yields the replay buffer and then
// every new entry, and a function that ends the subscription and closes the
// channel.
func (l *Log) Subscribe() (<-chan Entry, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sub := &subscriber{entries: make(chan Entry, l.replayLimit+subscriberBuffer)}
	for _, entry := range l.replay {
		sub.entries <- entry
	}
	l.subscribers[sub] = struct{}{}

	var once sync.Once
	return sub.entries, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subscribers, sub)
			close(sub.entries)
		})
	}
}
