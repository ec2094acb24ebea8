// Package boundedfetcher implements preview.Fetcher over net/http with a hard
// cap on buffered body bytes.
package boundedfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/JakeFAU/summaly-go/internal/preview"
)

// chunkSize bounds how many bytes a single read may add past the cap check.
const chunkSize = 32 * 1024

// Fallbacks used when Config leaves a limit unset.
const (
	defaultTimeout = 5 * time.Second
	defaultMaxSize = 2 * 1024 * 1024
)

var errTeapot = errors.New("I'm a teapot")

// Config holds process-wide fetch defaults.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	MaxSize   int64
	// Proxy is an optional outbound proxy URL (http, https, socks5, socks5h).
	Proxy string
}

// Fetcher performs bounded GET requests. It is safe for concurrent use.
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

var _ preview.Fetcher = (*Fetcher)(nil)

// New builds a Fetcher with a shared, traced transport routed through cfg.Proxy.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	transport, err := newHTTPTransport(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{Transport: otelhttp.NewTransport(transport)},
		logger: logger,
	}, nil
}

// Fetch executes a single GET and returns at most the effective size cap.
func (f *Fetcher) Fetch(ctx context.Context, request preview.FetchRequest) (preview.Document, error) {
	if strings.HasPrefix(request.URL, preview.TeapotScheme) {
		return preview.Document{}, preview.NewError(preview.KindTeapot, errTeapot)
	}

	ctx, span := otel.Tracer("summaly/fetcher").Start(ctx, "fetch.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("http.url", request.URL))

	doc, err := f.fetch(ctx, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(preview.KindOf(err)))
		return preview.Document{}, err
	}
	span.SetAttributes(
		attribute.Int("http.status_code", doc.StatusCode),
		attribute.Int("summaly.body_bytes", len(doc.Body)),
	)
	return doc, nil
}

func (f *Fetcher) fetch(ctx context.Context, request preview.FetchRequest) (preview.Document, error) {
	limit := f.effectiveMaxSize(request.MaxSize)
	ctx, cancel := context.WithTimeout(ctx, f.effectiveTimeout(request.Timeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, request.URL, nil)
	if err != nil {
		return preview.Document{}, preview.NewError(preview.KindInvalidRequest, fmt.Errorf("build request: %w", err))
	}
	userAgent := request.UserAgent
	if userAgent == "" {
		userAgent = f.cfg.UserAgent
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	if request.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", request.AcceptLanguage)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return preview.Document{}, preview.NewError(preview.KindTransport, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			f.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	if resp.ContentLength > limit {
		return preview.Document{}, preview.NewError(
			preview.KindLengthHintExceeded,
			fmt.Errorf("lengthHint:%d>%d", resp.ContentLength, limit),
		)
	}

	body, err := readCapped(resp.Body, limit, resp.ContentLength)
	if err != nil {
		return preview.Document{}, err
	}

	finalURL := request.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	f.logger.Debug("fetched document",
		zap.String("url", request.URL),
		zap.String("final_url", finalURL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
	)
	return preview.Document{
		URL:         finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (f *Fetcher) effectiveTimeout(requested time.Duration) time.Duration {
	timeout := f.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if requested > 0 && requested < timeout {
		return requested
	}
	return timeout
}

func (f *Fetcher) effectiveMaxSize(requested int64) int64 {
	limit := f.cfg.MaxSize
	if limit <= 0 {
		limit = defaultMaxSize
	}
	if requested > 0 && requested < limit {
		return requested
	}
	return limit
}

// readCapped accumulates r in chunkSize reads and fails as soon as the next
// chunk would push the buffer past limit, whether or not a length was advertised.
func readCapped(r io.Reader, limit int64, lengthHint int64) ([]byte, error) {
	initial := int64(chunkSize)
	if lengthHint > 0 && lengthHint <= limit {
		initial = lengthHint
	}
	if initial > limit {
		initial = limit
	}
	buf := make([]byte, 0, initial)
	chunk := make([]byte, chunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if total := int64(len(buf)) + int64(n); total > limit {
				return nil, preview.NewError(
					preview.KindLengthExceeded,
					fmt.Errorf("length:%d>%d", total, limit),
				)
			}
			buf = append(buf, chunk[:n]...)
		}
		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		if err != nil {
			return nil, preview.NewError(preview.KindTransport, fmt.Errorf("read body: %w", err))
		}
	}
}

func newHTTPTransport(proxyURL string) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
	if proxyURL == "" {
		return transport, nil
	}

	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		proxyDialer, err := proxy.FromURL(u, dialer)
		if err != nil {
			return nil, fmt.Errorf("create socks proxy: %w", err)
		}
		contextDialer, ok := proxyDialer.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("socks proxy dialer does not support contexts")
		}
		transport.Proxy = nil
		transport.DialContext = contextDialer.DialContext
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	return transport, nil
}
