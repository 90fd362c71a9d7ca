package conversations

import (
	"fmt"
	"testing"
	"time"

	"github.com/koscakluka/ema-agent/core/llms"
)

func TestHistoryEvictsOldestFirst(t *testing.T) {
	history := NewHistory(20)
	for i := 0; i < 25; i++ {
		history.Push(Turn{Role: llms.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}

	turns := history.Snapshot()
	if len(turns) != 20 {
		t.Fatalf("expected 20 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if want := fmt.Sprintf("turn %d", i+5); turn.Content != want {
			t.Fatalf("expected turn %d to be %q, got %q", i, want, turn.Content)
		}
	}
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	history := NewHistory(0)
	if history.Limit() != DefaultHistoryLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultHistoryLimit, history.Limit())
	}
	history.Push(Turn{Role: llms.RoleUser, Content: "hello"})

	snapshot := history.Snapshot()
	snapshot[0].Content = "changed"

	if got := history.Snapshot()[0].Content; got != "hello" {
		t.Fatalf("expected stored turn to be unchanged, got %q", got)
	}
	messages := history.Messages()
	if len(messages) != 1 || messages[0].Role != llms.RoleUser || messages[0].Content != "hello" {
		t.Fatalf("unexpected messages %+v", messages)
	}
}

func TestHistoryValuesStopsEarly(t *testing.T) {
	history := NewHistory(3)
	for i := 0; i < 5; i++ {
		history.Push(Turn{Role: llms.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}
	if history.Len() != 3 {
		t.Fatalf("expected 3 turns, got %d", history.Len())
	}

	var seen []string
	for turn := range history.Values {
		seen = append(seen, turn.Content)
		if len(seen) == 2 {
			break
		}
	}
	if len(seen) != 2 || seen[0] != "turn 2" || seen[1] != "turn 3" {
		t.Fatalf("expected the two oldest kept turns, got %v", seen)
	}

	messages := history.Messages()
	if len(messages) != 3 || messages[2].Content != "turn 4" {
		t.Fatalf("expected messages in history order, got %+v", messages)
	}
}

func TestLogReplaysToLateSubscribers(t *testing.T) {
	log := NewLog(3)
	for i := 0; i < 5; i++ {
		log.Append(SenderUser, fmt.Sprintf("entry %d", i))
	}

	entries, unsubscribe := log.Subscribe()
	defer unsubscribe()

	for i := 2; i < 5; i++ {
		select {
		case entry := <-entries:
			if want := fmt.Sprintf("entry %d", i); entry.Text != want {
				t.Fatalf("expected replayed %q, got %q", want, entry.Text)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for replayed entry %d", i)
		}
	}

	log.Append(SenderAssistant, "live")
	select {
	case entry := <-entries:
		if entry.Text != "live" || entry.Sender != SenderAssistant || entry.Timestamp.IsZero() || entry.ID == "" {
			t.Fatalf("unexpected live entry %+v", entry)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for live entry")
	}
}

func TestLogUnsubscribeClosesChannel(t *testing.T) {
	log := NewLog(0)
	entries, unsubscribe := log.Subscribe()
	unsubscribe()
	unsubscribe()

	if _, ok := <-entries; ok {
		t.Fatalf("expected channel to be closed")
	}
	log.Append(SenderSystem, "after unsubscribe")
	if got := len(log.Entries()); got != 1 {
		t.Fatalf("expected entry to be recorded, got %d", got)
	}
}
