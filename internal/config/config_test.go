package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Viewer.Bind != ":8080" {
		t.Errorf("Viewer.Bind = %s, want :8080", cfg.Viewer.Bind)
	}
	if cfg.Viewer.QueueDepth != 256 {
		t.Errorf("Viewer.QueueDepth = %d, want 256", cfg.Viewer.QueueDepth)
	}
	if cfg.Model.ConnectAttempts != 10 {
		t.Errorf("Model.ConnectAttempts = %d, want 10", cfg.Model.ConnectAttempts)
	}
	if cfg.Synth.Backend != "voicevox" {
		t.Errorf("Synth.Backend = %s, want voicevox", cfg.Synth.Backend)
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	dir := t.TempDir()
	path := filepath.Join(dir, "copilotd.yaml")
	data := []byte(`
viewer:
  bind: ":9090"
  queue_depth: 32
model:
  model: models/test-model
synth:
  backend: voicevox
  voicevox:
    url: http://tts:10000
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Viewer.Bind != ":9090" {
		t.Errorf("Viewer.Bind = %s, want :9090", cfg.Viewer.Bind)
	}
	if cfg.Viewer.QueueDepth != 32 {
		t.Errorf("Viewer.QueueDepth = %d, want 32", cfg.Viewer.QueueDepth)
	}
	if cfg.Model.Model != "models/test-model" {
		t.Errorf("Model.Model = %s", cfg.Model.Model)
	}
	// Unset fields keep defaults.
	if cfg.Viewer.HistorySize != 256 {
		t.Errorf("Viewer.HistorySize = %d, want default 256", cfg.Viewer.HistorySize)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("VIEWER_BIND", ":7070")
	t.Setenv("VIEWER_QUEUE_DEPTH", "8")
	t.Setenv("ROBOT_ADDR", "robot:8000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Model.APIKey != "env-key" {
		t.Errorf("Model.APIKey = %s", cfg.Model.APIKey)
	}
	if cfg.Viewer.Bind != ":7070" {
		t.Errorf("Viewer.Bind = %s", cfg.Viewer.Bind)
	}
	if cfg.Viewer.QueueDepth != 8 {
		t.Errorf("Viewer.QueueDepth = %d", cfg.Viewer.QueueDepth)
	}
	if cfg.Robot.Address != "robot:8000" {
		t.Errorf("Robot.Address = %s", cfg.Robot.Address)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing api key", func(c *Config) { c.Model.APIKey = "" }},
		{"zero queue depth", func(c *Config) { c.Viewer.QueueDepth = 0 }},
		{"zero history", func(c *Config) { c.Viewer.HistorySize = 0 }},
		{"zero retries", func(c *Config) { c.Model.ReconnectAttempts = 0 }},
		{"unknown backend", func(c *Config) { c.Synth.Backend = "espeak" }},
		{"elevenlabs without key", func(c *Config) { c.Synth.Backend = "elevenlabs" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Model.APIKey = "k"
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate should fail")
			}
		})
	}
}

func TestBackoffDurations(t *testing.T) {
	cfg := Default()
	if cfg.Model.BackoffBase().Milliseconds() != 2000 {
		t.Errorf("BackoffBase = %v", cfg.Model.BackoffBase())
	}
	if cfg.Model.BackoffCap().Milliseconds() != 30000 {
		t.Errorf("BackoffCap = %v", cfg.Model.BackoffCap())
	}
}
