package orchestration

import "sync"

type AgentState int

const (
	StateInactive AgentState = iota
	StateGreeting
	StateListening
	StateThinking
	StateSpeaking
	StateExecuting
	StatePaused
)

func (s AgentState) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateGreeting:
		return "greeting"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateExecuting:
		return "executing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

const stateSubscriberBuffer = 8

// stateBroadcaster holds the current state and fans changes out to
// subscribers. Only the agent loop writes to it.
type stateBroadcaster struct {
	mu          sync.Mutex
	current     AgentState
	subscribers map[chan AgentState]struct{}
}

func (b *stateBroadcaster) get() AgentState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// set reports whether the state actually changed.
func (b *stateBroadcaster) set(state AgentState) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == state {
		return false
	}
	b.current = state

	for subscriber := range b.subscribers {
		select {
		case subscriber <- state:
		default:
			// a full subscriber loses its oldest update, never the latest
			select {
			case <-subscriber:
			default:
			}
			select {
			case subscriber <- state:
			default:
			}
		}
	}
	return true
}

func (b *stateBroadcaster) subscribe() (<-chan AgentState, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers == nil {
		b.subscribers = map[chan AgentState]struct{}{}
	}

	subscriber := make(chan AgentState, stateSubscriberBuffer)
	subscriber <- b.current
	b.subscribers[subscriber] = struct{}{}

	var once sync.Once
	return subscriber, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subscribers, subscriber)
			close(subscriber)
		})
	}
}
