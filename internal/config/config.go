package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide
// settings coordinator; business logic never reads the environment directly
type Config struct {
	API       *APIConfig       `json:"api"`
	Channel   *ChannelConfig   `json:"channel"`
	Reconnect *ReconnectConfig `json:"reconnect"`
	Poll      *PollConfig      `json:"poll"`
	Journal   *JournalConfig   `json:"journal"`
}

// APIConfig addresses the REST collaborator surface.
type APIConfig struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

// ChannelConfig tunes the WebSocket transport.
type ChannelConfig struct {
	BaseURL          string        `json:"base_url"`
	PingInterval     time.Duration `json:"ping_interval"`
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	WriteTimeout     time.Duration `json:"write_timeout"`
	BufferSize       int           `json:"buffer_size"`
}

// ReconnectConfig tunes the backoff policy.
// FUNCTIONAL DISCOVERY: base delay and ceiling stay independently
// configurable - the production source carried two channel paths with
// different base constants
type ReconnectConfig struct {
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	MaxAttempts int           `json:"max_attempts"`
}

// PollConfig tunes the fallback poller.
type PollConfig struct {
	Interval time.Duration `json:"interval"`
}

// JournalConfig locates the local event journal.
type JournalConfig struct {
	Path string `json:"path"`
}

// DefaultConfig returns production-ready defaults: 30s heartbeat, 3s base
// backoff capped at 30s over 5 attempts, 5s fallback polling.
func DefaultConfig() *Config {
	return &Config{
		API: &APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 10 * time.Second,
		},
		Channel: &ChannelConfig{
			BaseURL:          "ws://localhost:8080",
			PingInterval:     30 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     5 * time.Second,
			BufferSize:       100,
		},
		Reconnect: &ReconnectConfig{
			BaseDelay:   3 * time.Second,
			MaxDelay:    30 * time.Second,
			MaxAttempts: 5,
		},
		Poll: &PollConfig{
			Interval: 5 * time.Second,
		},
		Journal: &JournalConfig{
			Path: "./lessonsync.db",
		},
	}
}

// Validate prevents invalid configurations from reaching components.
func (c *Config) Validate() error {
	if c.API == nil {
		return fmt.Errorf("api configuration is required")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api base URL cannot be empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive")
	}
	if c.Channel == nil {
		return fmt.Errorf("channel configuration is required")
	}
	if c.Channel.BaseURL == "" {
		return fmt.Errorf("channel base URL cannot be empty")
	}
	if c.Channel.PingInterval <= 0 {
		return fmt.Errorf("channel ping interval must be positive")
	}
	if c.Channel.HandshakeTimeout <= 0 {
		return fmt.Errorf("channel handshake timeout must be positive")
	}
	if c.Channel.WriteTimeout <= 0 {
		return fmt.Errorf("channel write timeout must be positive")
	}
	if c.Channel.BufferSize <= 0 {
		return fmt.Errorf("channel buffer size must be positive")
	}
	if c.Reconnect == nil {
		return fmt.Errorf("reconnect configuration is required")
	}
	if c.Reconnect.BaseDelay <= 0 {
		return fmt.Errorf("reconnect base delay must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return fmt.Errorf("reconnect max delay must be at least the base delay")
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("reconnect max attempts must be positive")
	}
	if c.Poll == nil {
		return fmt.Errorf("poll configuration is required")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Journal == nil {
		return fmt.Errorf("journal configuration is required")
	}
	if c.Journal.Path == "" {
		return fmt.Errorf("journal path cannot be empty")
	}
	return nil
}

// LoadFromEnv overrides defaults from LESSONSYNC_* environment variables.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if v := os.Getenv("LESSONSYNC_API_URL"); v != "" {
		config.API.BaseURL = v
	}
	if v := os.Getenv("LESSONSYNC_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.API.Timeout = d
		}
	}
	if v := os.Getenv("LESSONSYNC_CHANNEL_URL"); v != "" {
		config.Channel.BaseURL = v
	}
	if v := os.Getenv("LESSONSYNC_CHANNEL_PING_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Channel.PingInterval = d
		}
	}
	if v := os.Getenv("LESSONSYNC_CHANNEL_HANDSHAKE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Channel.HandshakeTimeout = d
		}
	}
	if v := os.Getenv("LESSONSYNC_CHANNEL_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Channel.WriteTimeout = d
		}
	}
	if v := os.Getenv("LESSONSYNC_CHANNEL_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Channel.BufferSize = n
		}
	}
	if v := os.Getenv("LESSONSYNC_RECONNECT_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Reconnect.BaseDelay = d
		}
	}
	if v := os.Getenv("LESSONSYNC_RECONNECT_MAX_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Reconnect.MaxDelay = d
		}
	}
	if v := os.Getenv("LESSONSYNC_RECONNECT_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Reconnect.MaxAttempts = n
		}
	}
	if v := os.Getenv("LESSONSYNC_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Poll.Interval = d
		}
	}
	if v := os.Getenv("LESSONSYNC_JOURNAL_PATH"); v != "" {
		config.Journal.Path = v
	}

	return config
}

// ConfigFile is the JSON shape with human-readable duration strings.
type ConfigFile struct {
	API       *APIConfigFile       `json:"api"`
	Channel   *ChannelConfigFile   `json:"channel"`
	Reconnect *ReconnectConfigFile `json:"reconnect"`
	Poll      *PollConfigFile      `json:"poll"`
	Journal   *JournalConfig       `json:"journal"`
}

type APIConfigFile struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout"`
}

type ChannelConfigFile struct {
	BaseURL          string `json:"base_url"`
	PingInterval     string `json:"ping_interval"`
	HandshakeTimeout string `json:"handshake_timeout"`
	WriteTimeout     string `json:"write_timeout"`
	BufferSize       int    `json:"buffer_size"`
}

type ReconnectConfigFile struct {
	BaseDelay   string `json:"base_delay"`
	MaxDelay    string `json:"max_delay"`
	MaxAttempts int    `json:"max_attempts"`
}

type PollConfigFile struct {
	Interval string `json:"interval"`
}

// LoadFromFile parses a JSON configuration file over the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if file.API != nil {
		if file.API.BaseURL != "" {
			config.API.BaseURL = file.API.BaseURL
		}
		if d, err := time.ParseDuration(file.API.Timeout); err == nil && file.API.Timeout != "" {
			config.API.Timeout = d
		}
	}
	if file.Channel != nil {
		if file.Channel.BaseURL != "" {
			config.Channel.BaseURL = file.Channel.BaseURL
		}
		if d, err := time.ParseDuration(file.Channel.PingInterval); err == nil && file.Channel.PingInterval != "" {
			config.Channel.PingInterval = d
		}
		if d, err := time.ParseDuration(file.Channel.HandshakeTimeout); err == nil && file.Channel.HandshakeTimeout != "" {
			config.Channel.HandshakeTimeout = d
		}
		if d, err := time.ParseDuration(file.Channel.WriteTimeout); err == nil && file.Channel.WriteTimeout != "" {
			config.Channel.WriteTimeout = d
		}
		if file.Channel.BufferSize > 0 {
			config.Channel.BufferSize = file.Channel.BufferSize
		}
	}
	if file.Reconnect != nil {
		if d, err := time.ParseDuration(file.Reconnect.BaseDelay); err == nil && file.Reconnect.BaseDelay != "" {
			config.Reconnect.BaseDelay = d
		}
		if d, err := time.ParseDuration(file.Reconnect.MaxDelay); err == nil && file.Reconnect.MaxDelay != "" {
			config.Reconnect.MaxDelay = d
		}
		if file.Reconnect.MaxAttempts > 0 {
			config.Reconnect.MaxAttempts = file.Reconnect.MaxAttempts
		}
	}
	if file.Poll != nil {
		if d, err := time.ParseDuration(file.Poll.Interval); err == nil && file.Poll.Interval != "" {
			config.Poll.Interval = d
		}
	}
	if file.Journal != nil && file.Journal.Path != "" {
		config.Journal.Path = file.Journal.Path
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > env > defaults.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
		// Silently ignore file errors - environment/defaults still work
	}

	return config
}
