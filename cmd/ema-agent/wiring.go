package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/koscakluka/ema-agent/core/actions"
	"github.com/koscakluka/ema-agent/core/audio"
	"github.com/koscakluka/ema-agent/core/audio/miniaudio"
	"github.com/koscakluka/ema-agent/core/audio/portaudio"
	"github.com/koscakluka/ema-agent/core/conversations"
	"github.com/koscakluka/ema-agent/core/llms"
	"github.com/koscakluka/ema-agent/core/llms/groq"
	"github.com/koscakluka/ema-agent/core/llms/openai"
	"github.com/koscakluka/ema-agent/core/texttospeech"
	"github.com/koscakluka/ema-agent/core/texttospeech/cartesia"
	"github.com/koscakluka/ema-agent/core/texttospeech/offline"
	"github.com/koscakluka/ema-agent/internal/config"
	"github.com/koscakluka/ema-agent/internal/platform"
	"github.com/spf13/cobra"
)

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "ema-agent.yaml"
	}
	return filepath.Join(dir, "ema-agent", "config.yaml")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// audioDevices holds the opened sound hardware. Capture always goes through
// miniaudio; playback follows the configured backend.
type audioDevices struct {
	playback audio.PlaybackDevice
	capture  audio.CaptureDevice
	closers  []func()
}

func openAudio(cfg config.AudioConfig) (*audioDevices, error) {
	capture, err := miniaudio.NewClient()
	if err != nil {
		return nil, fmt.Errorf("error opening audio: %w", err)
	}
	devices := &audioDevices{playback: capture, capture: capture, closers: []func(){capture.Close}}

	if cfg.Backend == config.BackendPortaudio {
		playback, err := portaudio.NewClient(cfg.BufferSize)
		if err != nil {
			devices.Close()
			return nil, fmt.Errorf("error opening portaudio: %w", err)
		}
		devices.playback = playback
		devices.closers = append(devices.closers, playback.Close)
	}
	return devices, nil
}

func (d *audioDevices) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// baseLanguage turns a tag like "en-US" into "en".
func baseLanguage(language string) string {
	base, _, _ := strings.Cut(strings.ToLower(language), "-")
	return base
}

// newRouter narrates actions in the same language the agent speaks.
func newRouter(cfg *config.Config, desktop *platform.Desktop, log *conversations.Log) *actions.Router {
	return actions.NewRouter(
		actions.WithBrowser(desktop),
		actions.WithDeviceInfo(desktop),
		actions.WithAppLauncher(desktop),
		actions.WithUIAutomation(desktop),
		actions.WithLanguage(cfg.Agent.Language),
		actions.WithLog(log),
	)
}

func newSpeechChain(cfg *config.Config, device audio.PlaybackDevice) *texttospeech.Chain {
	cartesiaOptions := []cartesia.Option{
		cartesia.WithAPIKey(cfg.Speech.APIKey),
		cartesia.WithBaseURL(cfg.Speech.BaseURL),
		cartesia.WithWebsocketURL(cfg.Speech.WebsocketURL),
		cartesia.WithVersion(cfg.Speech.Version),
		cartesia.WithModel(cfg.Speech.Model),
		cartesia.WithVoice(cfg.Speech.Voice),
		cartesia.WithSampleRate(cfg.Speech.SampleRate),
		cartesia.WithPlaybackDevice(device),
	}

	chainOptions := []texttospeech.ChainOption{
		texttospeech.WithLanguage(baseLanguage(cfg.Agent.Language)),
		texttospeech.WithOffline(offline.NewEspeak(
			offline.WithBinary(cfg.Speech.OfflineBinary),
			offline.WithPlaybackDevice(device),
		)),
	}
	if cfg.Speech.APIKey != "" {
		chainOptions = append(chainOptions,
			texttospeech.WithStreaming(cartesia.NewStreaming(cartesiaOptions...)),
			texttospeech.WithBatch(cartesia.NewBatch(cartesiaOptions...)),
		)
	}
	if !cfg.Speech.Streaming {
		chainOptions = append(chainOptions, texttospeech.WithoutStreaming())
	}
	return texttospeech.NewChain(chainOptions...)
}

var errNoReasoningKey = errors.New("reasoning.api_key is not set")

func newReasoner(cfg config.ReasoningConfig) (llms.Chat, error) {
	if cfg.APIKey == "" {
		return nil, errNoReasoningKey
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewClient(cfg.APIKey, cfg.Model,
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithTimeout(cfg.Timeout),
		), nil
	default:
		return groq.NewClient(cfg.APIKey, cfg.Model,
			groq.WithURL(cfg.BaseURL),
			groq.WithTimeout(cfg.Timeout),
		), nil
	}
}
