// Package platform implements the agent's device collaborators for Linux
// desktops using sysfs and common command line tools.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/koscakluka/ema-agent/core/actions"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-agent/internal/platform")

var (
	ErrNoBattery   = errors.New("no battery found")
	ErrUnsupported = errors.New("not supported on this desktop")
)

const defaultSearchURL = "https://duckduckgo.com/?q="

type Options struct {
	PowerSupplyDir string
	Opener         string
	SearchURL      string
	// Run starts a command without waiting for it to finish.
	Run func(ctx context.Context, name string, args ...string) error
}

type Option func(*Options)

func WithPowerSupplyDir(dir string) Option {
	return func(o *Options) { o.PowerSupplyDir = dir }
}

func WithRunner(run func(ctx context.Context, name string, args ...string) error) Option {
	return func(o *Options) { o.Run = run }
}

func WithSearchURL(searchURL string) Option {
	return func(o *Options) { o.SearchURL = searchURL }
}

// Desktop is a browser, app launcher, UI driver and device info source for
// the local machine.
type Desktop struct {
	options Options

	mu      sync.Mutex
	lastURL string
}

var (
	_ actions.Browser      = (*Desktop)(nil)
	_ actions.DeviceInfo   = (*Desktop)(nil)
	_ actions.AppLauncher  = (*Desktop)(nil)
	_ actions.UIAutomation = (*Desktop)(nil)
)

func NewDesktop(opts ...Option) *Desktop {
	options := Options{
		PowerSupplyDir: "/sys/class/power_supply",
		Opener:         "xdg-open",
		SearchURL:      defaultSearchURL,
		Run:            startCommand,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Desktop{options: options}
}

func startCommand(ctx context.Context, name string, args ...string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("%s is not installed: %w", name, err)
	}
	cmd := exec.CommandContext(ctx, path, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("error starting %s: %w", name, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Debug("command exited with error", "command", name, "error", err)
		}
	}()
	return nil
}

func (d *Desktop) Search(ctx context.Context, query string) error {
	return d.OpenURL(ctx, d.options.SearchURL+url.QueryEscape(query))
}

func (d *Desktop) OpenURL(ctx context.Context, rawURL string) error {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("invalid url %q", rawURL)
	}
	// the command outlives the action that started it
	if err := d.options.Run(context.WithoutCancel(ctx), d.options.Opener, parsed.String()); err != nil {
		return err
	}

	d.mu.Lock()
	d.lastURL = parsed.String()
	d.mu.Unlock()
	return nil
}

// LastWebPage returns the last page the agent opened, if any.
func (d *Desktop) LastWebPage(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastURL, nil
}

func (d *Desktop) Launch(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("no application name")
	}
	return d.options.Run(context.WithoutCancel(ctx), "gtk-launch", strings.ToLower(name))
}

func (d *Desktop) Battery(context.Context) (actions.Battery, error) {
	batteries, err := filepath.Glob(filepath.Join(d.options.PowerSupplyDir, "BAT*"))
	if err != nil || len(batteries) == 0 {
		return actions.Battery{}, ErrNoBattery
	}

	capacity, err := readSysfs(batteries[0], "capacity")
	if err != nil {
		return actions.Battery{}, err
	}
	percent, err := strconv.Atoi(capacity)
	if err != nil {
		return actions.Battery{}, fmt.Errorf("invalid battery capacity %q: %w", capacity, err)
	}

	status, err := readSysfs(batteries[0], "status")
	if err != nil {
		return actions.Battery{}, err
	}
	charging := status == "Charging" || status == "Full"

	return actions.Battery{Percent: percent, Charging: charging}, nil
}

func (d *Desktop) Summary(ctx context.Context) (string, error) {
	var parts []string
	if hostname, err := os.Hostname(); err == nil {
		parts = append(parts, "Host "+hostname+".")
	}
	if battery, err := d.Battery(ctx); err == nil {
		state := "not charging"
		if battery.Charging {
			state = "charging"
		}
		parts = append(parts, fmt.Sprintf("Battery %d percent, %s.", battery.Percent, state))
	} else if !errors.Is(err, ErrNoBattery) {
		logger.Warn("failed to read battery", "error", err)
	}
	return strings.Join(parts, " "), nil
}

func (d *Desktop) Click(context.Context, string) error {
	return fmt.Errorf("clicking by label: %w", ErrUnsupported)
}

func (d *Desktop) TypeText(ctx context.Context, text string) error {
	return d.options.Run(ctx, "xdotool", "type", "--delay", "20", text)
}

func (d *Desktop) Scroll(ctx context.Context, direction string) error {
	button := map[string]string{"up": "4", "down": "5", "left": "6", "right": "7"}[strings.ToLower(direction)]
	if button == "" {
		return fmt.Errorf("unknown scroll direction %q", direction)
	}
	return d.options.Run(ctx, "xdotool", "click", "--repeat", "5", button)
}

func (d *Desktop) Navigate(ctx context.Context, destination string) error {
	key := map[string]string{"back": "alt+Left", "forward": "alt+Right", "home": "super", "reload": "F5"}[strings.ToLower(destination)]
	if key == "" {
		return fmt.Errorf("navigating to %q: %w", destination, ErrUnsupported)
	}
	return d.options.Run(ctx, "xdotool", "key", key)
}

func readSysfs(dir string, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("error reading %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}
