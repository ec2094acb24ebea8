package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  bind_addr: 127.0.0.1:9090
  shutdown_timeout: 3s
fetch:
  user_agent: test-agent
  timeout: 1500
  max_size: 4096
  proxy: socks5://127.0.0.1:1080
  media_proxy: https://misskey.example.com/proxy/
  strict_utf8: true
response:
  append_headers:
    - "X-Frame-Options:DENY"
logging:
  development: true
  level: debug
telemetry:
  service_name: previewer
  tracing_enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9090", cfg.Server.BindAddr)
	require.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	require.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
	require.Equal(t, "test-agent", cfg.Fetch.UserAgent)
	require.Equal(t, 1500*time.Millisecond, cfg.Fetch.Timeout())
	require.EqualValues(t, 4096, cfg.Fetch.MaxSize)
	require.Equal(t, "socks5://127.0.0.1:1080", cfg.Fetch.Proxy)
	require.Equal(t, "https://misskey.example.com/proxy/", cfg.Fetch.MediaProxy)
	require.True(t, cfg.Fetch.StrictUTF8)
	require.Equal(t, []string{"X-Frame-Options:DENY"}, cfg.Response.AppendHeaders)
	require.True(t, cfg.Logging.Development)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "previewer", cfg.Telemetry.ServiceName)
	require.False(t, cfg.Telemetry.TracingEnabled)
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:12267", cfg.Server.BindAddr)
	require.Equal(t, 5*time.Second, cfg.Fetch.Timeout())
	require.EqualValues(t, 2*1024*1024, cfg.Fetch.MaxSize)
	require.Empty(t, cfg.Fetch.MediaProxy)
	require.Len(t, cfg.Response.AppendHeaders, 2)
	require.Equal(t, "*", cfg.Response.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, cfg.Response.Header().Get("Content-Security-Policy"), "default-src 'none'")
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "read config")
}

func TestLoadOrInitWritesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, created, err := LoadOrInit(path)
	require.NoError(t, err)
	require.True(t, created)
	require.FileExists(t, path)
	require.Equal(t, "0.0.0.0:12267", cfg.Server.BindAddr)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "user_agent")

	_, created, err = LoadOrInit(path)
	require.NoError(t, err)
	require.False(t, created)
}

func TestWriteDefaultRefusesOverwrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o600))
	require.Error(t, WriteDefault(path))
}

func TestResolvePath(t *testing.T) {
	t.Setenv(PathEnv, "")
	require.Equal(t, DefaultPath, ResolvePath(""))
	require.Equal(t, "flag.yaml", ResolvePath("flag.yaml"))

	t.Setenv(PathEnv, "/etc/summaly/config.json")
	require.Equal(t, "/etc/summaly/config.json", ResolvePath(""))
	require.Equal(t, "flag.yaml", ResolvePath("flag.yaml"))
}

func TestResponseHeaderSkipsBlankNames(t *testing.T) {
	t.Parallel()

	h := ResponseConfig{AppendHeaders: []string{"x-one: 1", ":nope", "X-Two:a:b"}}.Header()
	require.Equal(t, "1", h.Get("X-One"))
	require.Equal(t, "a:b", h.Get("X-Two"))
	require.Len(t, h, 2)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{BindAddr: ":12267"},
		Fetch: FetchConfig{
			UserAgent: "agent",
			TimeoutMs: 1000,
			MaxSize:   1024,
		},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing bind", mutate: func(c *Config) { c.Server.BindAddr = "" }, want: "server.bind_addr"},
		{name: "zero timeout", mutate: func(c *Config) { c.Fetch.TimeoutMs = 0 }, want: "fetch.timeout"},
		{name: "zero max size", mutate: func(c *Config) { c.Fetch.MaxSize = 0 }, want: "fetch.max_size"},
		{name: "missing agent", mutate: func(c *Config) { c.Fetch.UserAgent = "" }, want: "fetch.user_agent"},
		{name: "bad proxy scheme", mutate: func(c *Config) { c.Fetch.Proxy = "ftp://proxy:21" }, want: "fetch.proxy"},
		{name: "relative media proxy", mutate: func(c *Config) { c.Fetch.MediaProxy = "/proxy/" }, want: "fetch.media_proxy"},
		{
			name:   "malformed header",
			mutate: func(c *Config) { c.Response.AppendHeaders = []string{"no-colon"} },
			want:   "response.append_headers",
		},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}
