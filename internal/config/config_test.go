package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration must validate: %v", err)
	}
	if cfg.Reconnect.BaseDelay != 3*time.Second || cfg.Reconnect.MaxDelay != 30*time.Second || cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("unexpected reconnect defaults: %+v", cfg.Reconnect)
	}
	if cfg.Poll.Interval != 5*time.Second {
		t.Errorf("unexpected poll default: %v", cfg.Poll.Interval)
	}
	if cfg.Channel.PingInterval != 30*time.Second {
		t.Errorf("unexpected heartbeat default: %v", cfg.Channel.PingInterval)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing api", func(c *Config) { c.API = nil }},
		{"empty api url", func(c *Config) { c.API.BaseURL = "" }},
		{"zero api timeout", func(c *Config) { c.API.Timeout = 0 }},
		{"empty channel url", func(c *Config) { c.Channel.BaseURL = "" }},
		{"zero ping interval", func(c *Config) { c.Channel.PingInterval = 0 }},
		{"zero buffer", func(c *Config) { c.Channel.BufferSize = 0 }},
		{"zero base delay", func(c *Config) { c.Reconnect.BaseDelay = 0 }},
		{"max below base", func(c *Config) { c.Reconnect.MaxDelay = time.Second }},
		{"zero attempts", func(c *Config) { c.Reconnect.MaxAttempts = 0 }},
		{"zero poll interval", func(c *Config) { c.Poll.Interval = 0 }},
		{"empty journal path", func(c *Config) { c.Journal.Path = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("LESSONSYNC_API_URL", "https://school.example")
	t.Setenv("LESSONSYNC_CHANNEL_URL", "wss://school.example")
	t.Setenv("LESSONSYNC_RECONNECT_BASE_DELAY", "500ms")
	t.Setenv("LESSONSYNC_RECONNECT_MAX_ATTEMPTS", "7")
	t.Setenv("LESSONSYNC_POLL_INTERVAL", "2s")
	t.Setenv("LESSONSYNC_JOURNAL_PATH", "/tmp/test.db")

	cfg := LoadFromEnv()
	if cfg.API.BaseURL != "https://school.example" {
		t.Errorf("api url override not applied: %s", cfg.API.BaseURL)
	}
	if cfg.Channel.BaseURL != "wss://school.example" {
		t.Errorf("channel url override not applied: %s", cfg.Channel.BaseURL)
	}
	if cfg.Reconnect.BaseDelay != 500*time.Millisecond || cfg.Reconnect.MaxAttempts != 7 {
		t.Errorf("reconnect overrides not applied: %+v", cfg.Reconnect)
	}
	if cfg.Poll.Interval != 2*time.Second {
		t.Errorf("poll override not applied: %v", cfg.Poll.Interval)
	}
	if cfg.Journal.Path != "/tmp/test.db" {
		t.Errorf("journal override not applied: %s", cfg.Journal.Path)
	}
}

func TestLoadFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("LESSONSYNC_POLL_INTERVAL", "not-a-duration")
	t.Setenv("LESSONSYNC_RECONNECT_MAX_ATTEMPTS", "many")

	cfg := LoadFromEnv()
	if cfg.Poll.Interval != 5*time.Second {
		t.Errorf("malformed duration must keep the default, got %v", cfg.Poll.Interval)
	}
	if cfg.Reconnect.MaxAttempts != 5 {
		t.Errorf("malformed int must keep the default, got %d", cfg.Reconnect.MaxAttempts)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"api": {"base_url": "https://file.example", "timeout": "3s"},
		"reconnect": {"base_delay": "1s", "max_delay": "8s", "max_attempts": 2},
		"journal": {"path": "/tmp/file.db"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.API.BaseURL != "https://file.example" || cfg.API.Timeout != 3*time.Second {
		t.Errorf("api section not applied: %+v", cfg.API)
	}
	if cfg.Reconnect.BaseDelay != time.Second || cfg.Reconnect.MaxDelay != 8*time.Second || cfg.Reconnect.MaxAttempts != 2 {
		t.Errorf("reconnect section not applied: %+v", cfg.Reconnect)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Poll.Interval != 5*time.Second {
		t.Errorf("unspecified poll section must keep the default, got %v", cfg.Poll.Interval)
	}
}

func TestLoadFromFileRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	// Validates after merge: max delay below base delay.
	content := `{"reconnect": {"base_delay": "10s", "max_delay": "1s"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected validation error for inverted delays")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.json"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("LESSONSYNC_API_URL", "https://env.example")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"api": {"base_url": "https://file.example"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// File wins over environment.
	cfg := LoadConfigWithPrecedence(path)
	if cfg.API.BaseURL != "https://file.example" {
		t.Errorf("file must take precedence, got %s", cfg.API.BaseURL)
	}

	// No file: environment wins over defaults.
	cfg = LoadConfigWithPrecedence("")
	if cfg.API.BaseURL != "https://env.example" {
		t.Errorf("env must apply without a file, got %s", cfg.API.BaseURL)
	}

	// Broken file: fall back to env/defaults rather than failing.
	cfg = LoadConfigWithPrecedence("/nonexistent/config.json")
	if cfg.API.BaseURL != "https://env.example" {
		t.Errorf("unreadable file must fall back to env, got %s", cfg.API.BaseURL)
	}
}
