// Package config loads and validates the preview service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// PathEnv names the environment variable that points at the config file.
const PathEnv = "SUMMALY_CONFIG_PATH"

// DefaultPath is used when neither a flag nor PathEnv names a config file.
const DefaultPath = "config.json"

// Config captures all service configuration knobs loaded via Viper.
// It is loaded once at startup and only ever read afterwards.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Response  ResponseConfig  `mapstructure:"response"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	BindAddr        string        `mapstructure:"bind_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// FetchConfig governs outbound retrieval of target documents.
type FetchConfig struct {
	UserAgent string `mapstructure:"user_agent"`
	// TimeoutMs is the upper bound for a single fetch, in milliseconds.
	TimeoutMs int `mapstructure:"timeout"`
	// MaxSize is the upper bound for a response body, in bytes.
	MaxSize    int64  `mapstructure:"max_size"`
	Proxy      string `mapstructure:"proxy"`
	MediaProxy string `mapstructure:"media_proxy"`
	StrictUTF8 bool   `mapstructure:"strict_utf8"`
}

// Timeout returns TimeoutMs as a duration.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutMs) * time.Millisecond
}

// ResponseConfig lists headers appended to every response, formatted "Name:Value".
type ResponseConfig struct {
	AppendHeaders []string `mapstructure:"append_headers"`
}

// Header parses AppendHeaders. Malformed lines are rejected by Validate.
func (r ResponseConfig) Header() http.Header {
	h := make(http.Header, len(r.AppendHeaders))
	for _, line := range r.AppendHeaders {
		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}
		h.Add(textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name)), strings.TrimSpace(value))
	}
	return h
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls tracing setup.
type TelemetryConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
}

// ResolvePath picks the config file path: explicit flag, then PathEnv, then DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(PathEnv); env != "" {
		return env
	}
	return DefaultPath
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SUMMALY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadOrInit writes a default config file to path when none exists, then loads it.
// It reports whether a new file was written.
func LoadOrInit(path string) (Config, bool, error) {
	created := false
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			return Config{}, false, err
		}
		created = true
	} else if err != nil {
		return Config{}, false, fmt.Errorf("stat config: %w", err)
	}
	cfg, err := Load(path)
	return cfg, created, err
}

// WriteDefault writes the default settings to path. The format follows the file extension.
func WriteDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	v := viper.New()
	setDefaults(v)
	if err := v.SafeWriteConfigAs(path); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.bind_addr", "0.0.0.0:12267")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("fetch.user_agent", "https://github.com/JakeFAU/summaly-go")
	v.SetDefault("fetch.timeout", 5000)
	v.SetDefault("fetch.max_size", 2*1024*1024)
	v.SetDefault("fetch.proxy", "")
	v.SetDefault("fetch.media_proxy", "")
	v.SetDefault("fetch.strict_utf8", false)
	v.SetDefault("response.append_headers", []string{
		"Content-Security-Policy:default-src 'none'; img-src 'self'; media-src 'self'; style-src 'unsafe-inline'",
		"Access-Control-Allow-Origin:*",
	})
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("telemetry.service_name", "summaly")
	v.SetDefault("telemetry.tracing_enabled", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.BindAddr == "" {
		return fmt.Errorf("server.bind_addr must be set")
	}
	if c.Fetch.TimeoutMs <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxSize <= 0 {
		return fmt.Errorf("fetch.max_size must be > 0")
	}
	if c.Fetch.UserAgent == "" {
		return fmt.Errorf("fetch.user_agent must be set")
	}
	if c.Fetch.Proxy != "" {
		u, err := url.Parse(c.Fetch.Proxy)
		if err != nil {
			return fmt.Errorf("fetch.proxy: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return fmt.Errorf("fetch.proxy scheme %q not supported", u.Scheme)
		}
	}
	if c.Fetch.MediaProxy != "" {
		u, err := url.Parse(c.Fetch.MediaProxy)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("fetch.media_proxy must be an absolute URL")
		}
	}
	for _, line := range c.Response.AppendHeaders {
		name, _, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("response.append_headers entry %q must look like Name:Value", line)
		}
	}
	return nil
}
