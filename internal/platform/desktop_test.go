package platform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type commandRecorder struct {
	mu       sync.Mutex
	commands []string
	err      error
}

func (r *commandRecorder) run(_ context.Context, name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, strings.Join(append([]string{name}, args...), " "))
	return r.err
}

func (r *commandRecorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.commands) == 0 {
		return ""
	}
	return r.commands[len(r.commands)-1]
}

func fakePowerSupply(t *testing.T, capacity, status string) string {
	t.Helper()
	dir := t.TempDir()
	battery := filepath.Join(dir, "BAT0")
	if err := os.MkdirAll(battery, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, value := range map[string]string{"capacity": capacity + "\n", "status": status + "\n"} {
		if err := os.WriteFile(filepath.Join(battery, name), []byte(value), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestBatteryReadsSysfs(t *testing.T) {
	desktop := NewDesktop(WithPowerSupplyDir(fakePowerSupply(t, "82", "Charging")))

	battery, err := desktop.Battery(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if battery.Percent != 82 || !battery.Charging {
		t.Fatalf("unexpected battery %+v", battery)
	}

	summary, err := desktop.Summary(context.Background())
	if err != nil || !strings.Contains(summary, "Battery 82 percent, charging.") {
		t.Fatalf("unexpected summary %q (%v)", summary, err)
	}
}

func TestBatteryMissing(t *testing.T) {
	desktop := NewDesktop(WithPowerSupplyDir(t.TempDir()))
	if _, err := desktop.Battery(context.Background()); !errors.Is(err, ErrNoBattery) {
		t.Fatalf("expected ErrNoBattery, got %v", err)
	}
	if _, err := desktop.Summary(context.Background()); err != nil {
		t.Fatalf("summary should not fail without a battery: %v", err)
	}
}

func TestOpenURLRemembersLastPage(t *testing.T) {
	recorder := &commandRecorder{}
	desktop := NewDesktop(WithRunner(recorder.run))

	if err := desktop.OpenURL(context.Background(), "example.com/docs"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := recorder.last(); got != "xdg-open https://example.com/docs" {
		t.Fatalf("unexpected command %q", got)
	}
	if page, _ := desktop.LastWebPage(context.Background()); page != "https://example.com/docs" {
		t.Fatalf("unexpected last page %q", page)
	}
}

func TestSearchEscapesQuery(t *testing.T) {
	recorder := &commandRecorder{}
	desktop := NewDesktop(WithRunner(recorder.run), WithSearchURL("https://search.test/?q="))

	if err := desktop.Search(context.Background(), "go & rust"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := recorder.last(); got != "xdg-open https://search.test/?q=go+%26+rust" {
		t.Fatalf("unexpected command %q", got)
	}
}

func TestFailedOpenKeepsPreviousPage(t *testing.T) {
	recorder := &commandRecorder{err: errors.New("no display")}
	desktop := NewDesktop(WithRunner(recorder.run))

	if err := desktop.OpenURL(context.Background(), "https://example.com"); err == nil {
		t.Fatalf("expected error")
	}
	if page, _ := desktop.LastWebPage(context.Background()); page != "" {
		t.Fatalf("expected no last page, got %q", page)
	}
}

func TestUIAutomationCommands(t *testing.T) {
	recorder := &commandRecorder{}
	desktop := NewDesktop(WithRunner(recorder.run))
	ctx := context.Background()

	if err := desktop.Scroll(ctx, "Down"); err != nil || recorder.last() != "xdotool click --repeat 5 5" {
		t.Fatalf("unexpected scroll %q (%v)", recorder.last(), err)
	}
	if err := desktop.Navigate(ctx, "back"); err != nil || recorder.last() != "xdotool key alt+Left" {
		t.Fatalf("unexpected navigate %q (%v)", recorder.last(), err)
	}
	if err := desktop.Scroll(ctx, "sideways"); err == nil {
		t.Fatalf("expected unknown direction to fail")
	}
	if err := desktop.Click(ctx, "OK"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if err := desktop.Launch(ctx, "Firefox"); err != nil || recorder.last() != "gtk-launch firefox" {
		t.Fatalf("unexpected launch %q (%v)", recorder.last(), err)
	}
}
