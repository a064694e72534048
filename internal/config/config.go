// Package config loads copilotd configuration from an optional YAML file
// with environment variable overrides. Environment always wins so deployments
// can keep secrets out of the config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ViewerConfig controls the viewer relay endpoint.
type ViewerConfig struct {
	// Bind is the listen address for the viewer WebSocket server.
	Bind string `yaml:"bind"`

	// QueueDepth is the per-viewer outbound queue capacity.
	QueueDepth int `yaml:"queue_depth"`

	// HistorySize is the recent-history ring capacity used to bridge
	// late-joining and reconnecting viewers.
	HistorySize int `yaml:"history_size"`
}

// ModelConfig controls the upstream conversational model session.
type ModelConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`

	// Instructions is the system prompt sent at session setup.
	Instructions string `yaml:"instructions"`

	// ConnectAttempts bounds the initial handshake retry budget.
	ConnectAttempts int `yaml:"connect_attempts"`

	// ReconnectAttempts bounds reconnection after a mid-session drop.
	ReconnectAttempts int `yaml:"reconnect_attempts"`

	// BackoffBaseMS and BackoffCapMS shape the exponential backoff between
	// attempts. The delay doubles per attempt and never exceeds the cap.
	BackoffBaseMS int `yaml:"backoff_base_ms"`
	BackoffCapMS  int `yaml:"backoff_cap_ms"`
}

// BackoffBase returns the backoff base as a duration.
func (m ModelConfig) BackoffBase() time.Duration {
	return time.Duration(m.BackoffBaseMS) * time.Millisecond
}

// BackoffCap returns the backoff ceiling as a duration.
func (m ModelConfig) BackoffCap() time.Duration {
	return time.Duration(m.BackoffCapMS) * time.Millisecond
}

// VoicevoxConfig configures the VOICEVOX-compatible synthesis backend.
type VoicevoxConfig struct {
	URL       string  `yaml:"url"`
	SpeakerID int     `yaml:"speaker_id"`
	ModelName string  `yaml:"model_name"`
	Style     string  `yaml:"style"`
	Speed     float64 `yaml:"speed"`
}

// ElevenLabsConfig configures the ElevenLabs synthesis backend.
type ElevenLabsConfig struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
	Model   string `yaml:"model"`
}

// SynthConfig selects and configures speech synthesis backends.
type SynthConfig struct {
	// Backend is the primary backend: "voicevox" or "elevenlabs".
	Backend string `yaml:"backend"`

	// Fallback is an optional secondary backend tried when the primary fails.
	Fallback string `yaml:"fallback"`

	Voicevox   VoicevoxConfig   `yaml:"voicevox"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
}

// RobotConfig points at the robot I/O daemon.
type RobotConfig struct {
	// Address is the host:port of the robot daemon HTTP/WebSocket API.
	Address string `yaml:"address"`

	// Volume is the initial speaker volume (0-100).
	Volume int `yaml:"volume"`
}

// PlacesConfig configures location lookup for map tool calls.
// When APIKey is empty, tool calls pass the model's fields through verbatim.
type PlacesConfig struct {
	APIKey    string  `yaml:"api_key"`
	Language  string  `yaml:"language"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	RadiusM   int     `yaml:"radius_m"`
}

// Config is the root copilotd configuration.
type Config struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	// Greeting is spoken once at first session start, not after reconnects.
	Greeting string `yaml:"greeting"`

	Viewer ViewerConfig `yaml:"viewer"`
	Model  ModelConfig  `yaml:"model"`
	Synth  SynthConfig  `yaml:"synth"`
	Robot  RobotConfig  `yaml:"robot"`
	Places PlacesConfig `yaml:"places"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		Environment: "development",
		LogLevel:    "info",
		Viewer: ViewerConfig{
			Bind:        ":8080",
			QueueDepth:  256,
			HistorySize: 256,
		},
		Model: ModelConfig{
			Endpoint:          "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent",
			Model:             "models/gemini-2.5-flash-native-audio-preview-12-2025",
			ConnectAttempts:   10,
			ReconnectAttempts: 10,
			BackoffBaseMS:     2000,
			BackoffCapMS:      30000,
		},
		Synth: SynthConfig{
			Backend: "voicevox",
			Voicevox: VoicevoxConfig{
				URL:       "http://localhost:10000",
				SpeakerID: 888753760,
				ModelName: "Anneli",
				Style:     "Neutral",
				Speed:     1.0,
			},
			ElevenLabs: ElevenLabsConfig{
				Model: "eleven_flash_v2_5",
			},
		},
		Robot: RobotConfig{
			Address: "localhost:8000",
			Volume:  100,
		},
		Places: PlacesConfig{
			Language: "ja",
			RadiusM:  5000,
		},
	}
}

// Load reads the config file at path (if it exists), applies defaults and
// environment overrides, and validates the result. An empty path skips the
// file and uses defaults plus environment only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config.
func (c *Config) applyEnv() {
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Environment, "GO_ENV")
	setString(&c.Viewer.Bind, "VIEWER_BIND")
	setInt(&c.Viewer.QueueDepth, "VIEWER_QUEUE_DEPTH")
	setInt(&c.Viewer.HistorySize, "VIEWER_HISTORY_SIZE")
	setString(&c.Model.APIKey, "GEMINI_API_KEY")
	setString(&c.Model.Endpoint, "MODEL_ENDPOINT")
	setString(&c.Model.Model, "MODEL_ID")
	setInt(&c.Model.ConnectAttempts, "MODEL_CONNECT_ATTEMPTS")
	setInt(&c.Model.ReconnectAttempts, "MODEL_RECONNECT_ATTEMPTS")
	setString(&c.Synth.Backend, "SYNTH_BACKEND")
	setString(&c.Synth.Voicevox.URL, "VOICEVOX_URL")
	setString(&c.Synth.ElevenLabs.APIKey, "ELEVENLABS_API_KEY")
	setString(&c.Synth.ElevenLabs.VoiceID, "ELEVENLABS_VOICE_ID")
	setString(&c.Robot.Address, "ROBOT_ADDR")
	setString(&c.Places.APIKey, "GOOGLEMAP_API_KEY")
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Model.APIKey == "" {
		return &Error{Field: "model.api_key", Message: "GEMINI_API_KEY environment variable is required"}
	}
	if c.Viewer.QueueDepth <= 0 {
		return &Error{Field: "viewer.queue_depth", Message: "must be positive"}
	}
	if c.Viewer.HistorySize <= 0 {
		return &Error{Field: "viewer.history_size", Message: "must be positive"}
	}
	if c.Model.ConnectAttempts <= 0 || c.Model.ReconnectAttempts <= 0 {
		return &Error{Field: "model", Message: "retry budgets must be positive"}
	}
	switch c.Synth.Backend {
	case "voicevox", "elevenlabs":
	default:
		return &Error{Field: "synth.backend", Message: fmt.Sprintf("unknown backend %q", c.Synth.Backend)}
	}
	if c.Synth.Backend == "elevenlabs" && c.Synth.ElevenLabs.APIKey == "" {
		return &Error{Field: "synth.elevenlabs.api_key", Message: "ELEVENLABS_API_KEY is required for the elevenlabs backend"}
	}
	return nil
}

// Error represents a configuration validation error.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
