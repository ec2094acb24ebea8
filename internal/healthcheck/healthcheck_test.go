package healthcheck

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/summaly-go/internal/api"
	"github.com/JakeFAU/summaly-go/internal/config"
	boundedfetcher "github.com/JakeFAU/summaly-go/internal/fetcher/bounded"
	"github.com/JakeFAU/summaly-go/internal/preview"
)

func TestRunAgainstPreviewService(t *testing.T) {
	t.Parallel()

	fetcher, err := boundedfetcher.New(boundedfetcher.Config{Timeout: time.Second, MaxSize: 1 << 20}, zap.NewNop())
	require.NoError(t, err)
	cfg := config.Config{Server: config.ServerConfig{RequestTimeout: 5 * time.Second}}
	target := httptest.NewServer(api.NewServer(preview.New(fetcher, preview.Options{}, zap.NewNop()), cfg, zap.NewNop()).Handler())
	defer target.Close()

	err = Run(context.Background(), fastConfig(target.URL))
	require.NoError(t, err)
}

func TestRunTargetMismatch(t *testing.T) {
	t.Parallel()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"title": "other", "description": ExpectedDescription})
	}))
	defer target.Close()

	err := Run(context.Background(), fastConfig(target.URL))
	require.ErrorIs(t, err, ErrTarget)
	require.Contains(t, err.Error(), "title mismatch")
}

func TestRunTargetUnavailable(t *testing.T) {
	t.Parallel()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer target.Close()

	err := Run(context.Background(), fastConfig(target.URL))
	require.ErrorIs(t, err, ErrTarget)
}

func TestRunBindError(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	cfg := fastConfig("http://127.0.0.1:1/")
	cfg.BindPort = ln.Addr().(*net.TCPAddr).Port
	err = Run(context.Background(), cfg)
	require.ErrorIs(t, err, ErrLocalServer)
}

func TestBuildProbeURL(t *testing.T) {
	t.Parallel()

	got, err := buildProbeURL("http://127.0.0.1:12267/?lang=en", "http://127.0.0.1:9000/")
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:12267/?lang=en&url=http%3A%2F%2F127.0.0.1%3A9000%2F", got)
}

func fastConfig(target string) Config {
	return Config{
		TargetURL:      target,
		LocalAttempts:  20,
		LocalInterval:  10 * time.Millisecond,
		TargetAttempts: 2,
		TargetInterval: 10 * time.Millisecond,
	}
}
