package mirchat

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config controls how the session connects and behaves.
// Use DefaultConfig() as a starting point and modify as needed.
type Config struct {
	Channel   ChannelConfig   `yaml:"channel" toml:"channel"`
	Directory DirectoryConfig `yaml:"directory" toml:"directory"`
	Messages  MessagesConfig  `yaml:"messages" toml:"messages"`
	Reconnect ReconnectConfig `yaml:"reconnect" toml:"reconnect"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ChannelConfig describes the real-time channel. The bearer token is appended
// to URL as the "token" query parameter.
type ChannelConfig struct {
	URL        string `yaml:"url" toml:"url"`
	WriteQueue int    `yaml:"write_queue" toml:"write_queue"`

	HandshakeTimeout time.Duration `yaml:"-" toml:"-"`
	WriteTimeout     time.Duration `yaml:"-" toml:"-"`

	HandshakeTimeoutRaw string `yaml:"handshake_timeout" toml:"handshake_timeout"`
	WriteTimeoutRaw     string `yaml:"write_timeout" toml:"write_timeout"`
}

// DirectoryConfig describes the peer directory endpoint and its refresh policy.
type DirectoryConfig struct {
	BaseURL    string `yaml:"base_url" toml:"base_url"`
	MaxRetries int    `yaml:"max_retries" toml:"max_retries"`

	RefreshInterval time.Duration `yaml:"-" toml:"-"`
	RetryDelay      time.Duration `yaml:"-" toml:"-"`
	RequestTimeout  time.Duration `yaml:"-" toml:"-"`

	RefreshIntervalRaw string `yaml:"refresh_interval" toml:"refresh_interval"`
	RetryDelayRaw      string `yaml:"retry_delay" toml:"retry_delay"`
	RequestTimeoutRaw  string `yaml:"request_timeout" toml:"request_timeout"`
}

// MessagesConfig holds message validation and labelling settings.
type MessagesConfig struct {
	MaxLength    int    `yaml:"max_length" toml:"max_length"`
	SelfLabel    string `yaml:"self_label" toml:"self_label"`
	UnknownLabel string `yaml:"unknown_label" toml:"unknown_label"`
}

// ReconnectConfig controls the optional reconnect after a transport failure
// while the session is in the foreground.
type ReconnectConfig struct {
	OnFailure   bool `yaml:"on_failure" toml:"on_failure"`
	MaxAttempts int  `yaml:"max_attempts" toml:"max_attempts"`

	Delay    time.Duration `yaml:"-" toml:"-"`
	DelayRaw string        `yaml:"delay" toml:"delay"`
}

// AuthConfig holds the external identity provider's logout parameters.
type AuthConfig struct {
	LogoutURL   string `yaml:"logout_url" toml:"logout_url"`
	ClientID    string `yaml:"client_id" toml:"client_id"`
	RedirectURI string `yaml:"redirect_uri" toml:"redirect_uri"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Channel: ChannelConfig{
			WriteQueue:       16,
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     10 * time.Second,
		},
		Directory: DirectoryConfig{
			MaxRetries:      10,
			RefreshInterval: 30 * time.Second,
			RetryDelay:      time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Messages: MessagesConfig{
			MaxLength:    500,
			SelfLabel:    "Me",
			UnknownLabel: "Unknown",
		},
		Reconnect: ReconnectConfig{
			OnFailure:   true,
			MaxAttempts: 5,
			Delay:       2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a configuration file on top of DefaultConfig. Files ending
// in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	expanded := expandEnvVars(string(data))

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing durations: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"channel.handshake_timeout", cfg.Channel.HandshakeTimeoutRaw, &cfg.Channel.HandshakeTimeout},
		{"channel.write_timeout", cfg.Channel.WriteTimeoutRaw, &cfg.Channel.WriteTimeout},
		{"directory.refresh_interval", cfg.Directory.RefreshIntervalRaw, &cfg.Directory.RefreshInterval},
		{"directory.retry_delay", cfg.Directory.RetryDelayRaw, &cfg.Directory.RetryDelay},
		{"directory.request_timeout", cfg.Directory.RequestTimeoutRaw, &cfg.Directory.RequestTimeout},
		{"reconnect.delay", cfg.Reconnect.DelayRaw, &cfg.Reconnect.Delay},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate checks that required fields are present and values are in range.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Channel.URL == "" {
		return NewError(ErrorInvalidConfig, "channel.url is required")
	}
	u, err := url.Parse(c.Channel.URL)
	if err != nil {
		return WrapError(ErrorInvalidConfig, "channel.url is not a valid URL", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return NewError(ErrorInvalidConfig, fmt.Sprintf("channel.url has unsupported scheme %q", u.Scheme))
	}
	if c.Channel.WriteQueue <= 0 {
		return NewError(ErrorInvalidConfig, "channel.write_queue must be positive")
	}
	if c.Channel.HandshakeTimeout < 0 {
		return NewError(ErrorInvalidConfig, "channel.handshake_timeout must not be negative")
	}
	if c.Channel.WriteTimeout < 0 {
		return NewError(ErrorInvalidConfig, "channel.write_timeout must not be negative")
	}
	if c.Directory.BaseURL == "" {
		return NewError(ErrorInvalidConfig, "directory.base_url is required")
	}
	if c.Directory.RefreshInterval <= 0 {
		return NewError(ErrorInvalidConfig, "directory.refresh_interval must be positive")
	}
	if c.Directory.MaxRetries < 0 {
		return NewError(ErrorInvalidConfig, "directory.max_retries must not be negative")
	}
	if c.Directory.RetryDelay < 0 {
		return NewError(ErrorInvalidConfig, "directory.retry_delay must not be negative")
	}
	if c.Directory.RequestTimeout < 0 {
		return NewError(ErrorInvalidConfig, "directory.request_timeout must not be negative")
	}
	if c.Messages.MaxLength <= 0 {
		return NewError(ErrorInvalidConfig, "messages.max_length must be positive")
	}
	if c.Reconnect.OnFailure && c.Reconnect.Delay <= 0 {
		return NewError(ErrorInvalidConfig, "reconnect.delay must be positive when reconnect.on_failure is set")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return NewError(ErrorInvalidConfig, "reconnect.max_attempts must not be negative")
	}
	return nil
}

// SignOutURL builds the identity provider's logout address with the client id
// and post-logout redirect as query parameters. Empty when no logout URL is
// configured.
func (a AuthConfig) SignOutURL() string {
	if a.LogoutURL == "" {
		return ""
	}
	q := url.Values{}
	q.Set("client_id", a.ClientID)
	q.Set("logout_uri", a.RedirectURI)
	sep := "?"
	if strings.Contains(a.LogoutURL, "?") {
		sep = "&"
	}
	return a.LogoutURL + sep + q.Encode()
}
