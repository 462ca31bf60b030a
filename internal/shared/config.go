package shared

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Backend  BackendConfig  `toml:"backend"`
	Console  ConsoleConfig  `toml:"console"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
}

// BackendConfig locates the job runner's REST API and push channel.
type BackendConfig struct {
	URL            string  `toml:"url"`
	WSPath         string  `toml:"ws_path"`
	RateLimit      float64 `toml:"rate_limit"`
	RequestTimeout string  `toml:"request_timeout"`
}

// ConsoleConfig holds the engine's timing knobs as Go duration strings.
type ConsoleConfig struct {
	ReconnectDelay string `toml:"reconnect_delay"`
	PollInterval   string `toml:"poll_interval"`
	FinishGrace    string `toml:"finish_grace"`
	NotifyDuration string `toml:"notify_duration"`
	NotifyFade     string `toml:"notify_fade"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Timings is the parsed form of [ConsoleConfig] plus the request timeout.
type Timings struct {
	ReconnectDelay time.Duration
	PollInterval   time.Duration
	FinishGrace    time.Duration
	NotifyDuration time.Duration
	NotifyFade     time.Duration
	RequestTimeout time.Duration
}

// DefaultTimings mirrors the values shipped in the example config.
func DefaultTimings() Timings {
	return Timings{
		ReconnectDelay: 3 * time.Second,
		PollInterval:   2 * time.Second,
		FinishGrace:    2 * time.Second,
		NotifyDuration: 4 * time.Second,
		NotifyFade:     300 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
	}
}

// Timings parses every duration field. Empty fields fall back to [DefaultTimings].
func (c *Config) Timings() (Timings, error) {
	t := DefaultTimings()
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"console.reconnect_delay", c.Console.ReconnectDelay, &t.ReconnectDelay},
		{"console.poll_interval", c.Console.PollInterval, &t.PollInterval},
		{"console.finish_grace", c.Console.FinishGrace, &t.FinishGrace},
		{"console.notify_duration", c.Console.NotifyDuration, &t.NotifyDuration},
		{"console.notify_fade", c.Console.NotifyFade, &t.NotifyFade},
		{"backend.request_timeout", c.Backend.RequestTimeout, &t.RequestTimeout},
	}

	for _, f := range fields {
		if strings.TrimSpace(f.raw) == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return t, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, f.name, err)
		}
		if d < 0 {
			return t, fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, f.name)
		}
		*f.dst = d
	}
	return t, nil
}

// PushURL resolves the WebSocket endpoint from the backend URL and ws_path.
func (c *Config) PushURL() (string, error) {
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return "", fmt.Errorf("%w: backend.url: %v", ErrInvalidConfig, err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: backend.url has unsupported scheme %q", ErrInvalidConfig, u.Scheme)
	}

	path := c.Backend.WSPath
	if path == "" {
		path = "/ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return u.String(), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// LoadConfigOrDefault loads path when it exists and falls back to [DefaultConfig] otherwise.
func LoadConfigOrDefault(path string) *Config {
	if _, err := os.Stat(path); err != nil {
		return DefaultConfig()
	}
	config, err := LoadConfig(path)
	if err != nil {
		return DefaultConfig()
	}
	return config
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
