// Package config loads agent settings from a YAML file with EMA_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"

	BackendMiniaudio = "miniaudio"
	BackendPortaudio = "portaudio"
)

type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Speech    SpeechConfig    `yaml:"speech"`
	Listen    ListenConfig    `yaml:"listen"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Audio     AudioConfig     `yaml:"audio"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type AgentConfig struct {
	Language        string        `yaml:"language" env:"EMA_LANGUAGE"`
	Greeting        string        `yaml:"greeting" env:"EMA_GREETING"`
	SystemPrompt    string        `yaml:"system_prompt" env:"EMA_SYSTEM_PROMPT"`
	ShutdownPhrases []string      `yaml:"shutdown_phrases" env:"EMA_SHUTDOWN_PHRASES" envSeparator:","`
	HistoryLimit    int           `yaml:"history_limit" env:"EMA_HISTORY_LIMIT"`
	SpeakPause      time.Duration `yaml:"speak_pause" env:"EMA_SPEAK_PAUSE"`
}

type SpeechConfig struct {
	Streaming     bool   `yaml:"streaming" env:"EMA_SPEECH_STREAMING"`
	APIKey        string `yaml:"api_key" env:"EMA_CARTESIA_API_KEY"`
	BaseURL       string `yaml:"base_url" env:"EMA_CARTESIA_BASE_URL"`
	WebsocketURL  string `yaml:"websocket_url" env:"EMA_CARTESIA_WEBSOCKET_URL"`
	Version       string `yaml:"version" env:"EMA_CARTESIA_VERSION"`
	Model         string `yaml:"model" env:"EMA_CARTESIA_MODEL"`
	Voice         string `yaml:"voice" env:"EMA_CARTESIA_VOICE"`
	SampleRate    int    `yaml:"sample_rate" env:"EMA_SPEECH_SAMPLE_RATE"`
	OfflineBinary string `yaml:"offline_binary" env:"EMA_OFFLINE_BINARY"`
}

type ListenConfig struct {
	APIKey          string        `yaml:"api_key" env:"EMA_DEEPGRAM_API_KEY"`
	Model           string        `yaml:"model" env:"EMA_DEEPGRAM_MODEL"`
	TrailingSilence time.Duration `yaml:"trailing_silence" env:"EMA_TRAILING_SILENCE"`
	Window          time.Duration `yaml:"window" env:"EMA_LISTEN_WINDOW"`
}

type ReasoningConfig struct {
	Provider string        `yaml:"provider" env:"EMA_REASONING_PROVIDER"`
	APIKey   string        `yaml:"api_key" env:"EMA_REASONING_API_KEY"`
	BaseURL  string        `yaml:"base_url" env:"EMA_REASONING_BASE_URL"`
	Model    string        `yaml:"model" env:"EMA_REASONING_MODEL"`
	Timeout  time.Duration `yaml:"timeout" env:"EMA_REASONING_TIMEOUT"`
}

type AudioConfig struct {
	Backend    string `yaml:"backend" env:"EMA_AUDIO_BACKEND"`
	BufferSize int    `yaml:"buffer_size" env:"EMA_AUDIO_BUFFER_SIZE"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"EMA_OTLP_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env:"EMA_SERVICE_NAME"`
	Insecure     bool   `yaml:"insecure" env:"EMA_OTLP_INSECURE"`
}

func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Language:     "en-US",
			HistoryLimit: 20,
			SpeakPause:   250 * time.Millisecond,
		},
		Speech: SpeechConfig{
			Streaming:     true,
			SampleRate:    24000,
			OfflineBinary: "espeak-ng",
		},
		Listen: ListenConfig{
			Model:           "nova-3",
			TrailingSilence: 3500 * time.Millisecond,
			Window:          8 * time.Second,
		},
		Reasoning: ReasoningConfig{
			Provider: ProviderGroq,
			Timeout:  60 * time.Second,
		},
		Audio: AudioConfig{
			Backend:    BackendMiniaudio,
			BufferSize: 512,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "ema-agent",
			Insecure:    true,
		},
	}
}

// Load reads path if it exists, applies environment overrides and validates
// the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Agent.Language == "" {
		errs = append(errs, errors.New("agent.language must be set"))
	}
	if c.Agent.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("agent.history_limit must be positive, got %d", c.Agent.HistoryLimit))
	}
	if c.Speech.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("speech.sample_rate must be positive, got %d", c.Speech.SampleRate))
	}
	if c.Listen.TrailingSilence <= 0 || c.Listen.Window <= 0 {
		errs = append(errs, errors.New("listen.trailing_silence and listen.window must be positive"))
	}
	if c.Reasoning.Timeout <= 0 {
		errs = append(errs, errors.New("reasoning.timeout must be positive"))
	}
	switch c.Reasoning.Provider {
	case ProviderGroq, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown reasoning provider %q", c.Reasoning.Provider))
	}
	switch c.Audio.Backend {
	case BackendMiniaudio, BackendPortaudio:
	default:
		errs = append(errs, fmt.Errorf("unknown audio backend %q", c.Audio.Backend))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
