// Package healthcheck runs a synthetic end-to-end probe against a running
// preview service. It serves a known page on a local port, asks the target to
// summarize it, and checks the returned title and description.
package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Page is served to the target; its metadata is what the probe expects back.
const Page = `<html><head>
<meta property="og:description" content="description text">
<title>TEST_HTML_FILE</title>
</head></html>
`

// Expected values extracted from Page.
const (
	ExpectedTitle       = "TEST_HTML_FILE"
	ExpectedDescription = "description text"
)

var (
	// ErrLocalServer means the probe page could not be served.
	ErrLocalServer = errors.New("test server bind error")
	// ErrTarget means the target never returned the expected preview.
	ErrTarget = errors.New("target did not return the expected preview")
)

// Config controls one probe run. Zero values take the defaults of the
// original tool: 20 local polls 50ms apart and 5 target attempts 500ms apart.
type Config struct {
	BindPort       int
	TargetURL      string
	Client         *http.Client
	Logger         *zap.Logger
	LocalAttempts  int
	LocalInterval  time.Duration
	TargetAttempts int
	TargetInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 500 * time.Millisecond}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.LocalAttempts <= 0 {
		c.LocalAttempts = 20
	}
	if c.LocalInterval <= 0 {
		c.LocalInterval = 50 * time.Millisecond
	}
	if c.TargetAttempts <= 0 {
		c.TargetAttempts = 5
	}
	if c.TargetInterval <= 0 {
		c.TargetInterval = 500 * time.Millisecond
	}
}

type summary struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Run executes the probe. It returns nil on success, an error wrapping
// ErrLocalServer when the probe page never came up, and one wrapping ErrTarget
// otherwise.
func Run(ctx context.Context, cfg Config) error {
	cfg.setDefaults()

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.BindPort)))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLocalServer, err)
	}
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, Page)
	})
	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cfg.Logger.Warn("probe server stopped", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	selfURL := "http://" + ln.Addr().String() + "/"
	if !poll(ctx, cfg.LocalAttempts, cfg.LocalInterval, func() bool {
		return get(ctx, cfg.Client, selfURL) == nil
	}) {
		return ErrLocalServer
	}
	cfg.Logger.Debug("probe page ready", zap.String("url", selfURL))

	probeURL, err := buildProbeURL(cfg.TargetURL, selfURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTarget, err)
	}

	var lastErr error
	ok := poll(ctx, cfg.TargetAttempts, cfg.TargetInterval, func() bool {
		lastErr = checkTarget(ctx, cfg.Client, probeURL)
		if lastErr != nil {
			cfg.Logger.Info("probe attempt failed", zap.String("url", probeURL), zap.Error(lastErr))
		}
		return lastErr == nil
	})
	if !ok {
		return fmt.Errorf("%w: %w", ErrTarget, lastErr)
	}
	return nil
}

func buildProbeURL(target, selfURL string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse target url: %w", err)
	}
	q := u.Query()
	q.Set("url", selfURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func checkTarget(ctx context.Context, client *http.Client, probeURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request target: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var got summary
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		return fmt.Errorf("decode preview: %w", err)
	}
	if got.Title == nil || *got.Title != ExpectedTitle {
		return fmt.Errorf("title mismatch: %v", deref(got.Title))
	}
	if got.Description == nil || *got.Description != ExpectedDescription {
		return fmt.Errorf("description mismatch: %v", deref(got.Description))
	}
	return nil
}

func get(ctx context.Context, client *http.Client, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// poll runs attempt up to n times, sleeping interval between tries.
func poll(ctx context.Context, n int, interval time.Duration, attempt func() bool) bool {
	for i := 0; i < n; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(interval):
			}
		}
		if attempt() {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return "<null>"
	}
	return *s
}
