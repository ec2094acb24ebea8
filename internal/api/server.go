package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/summaly-go/internal/config"
	"github.com/JakeFAU/summaly-go/internal/preview"
	"github.com/JakeFAU/summaly-go/internal/telemetry"
)

// proxyErrorHeader carries a short failure reason on non-200 responses.
const proxyErrorHeader = "X-Proxy-Error"

// Summarizer produces a preview record for one request.
type Summarizer interface {
	Summarize(ctx context.Context, params preview.Params) (*preview.Result, error)
}

// Server wires HTTP handlers to the summarizer.
type Server struct {
	router     chi.Router
	summarizer Summarizer
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(summarizer Summarizer, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		summarizer: summarizer,
		cfg:        cfg,
		logger:     logger,
	}

	requestTimeout := cfg.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(appendHeadersMiddleware(cfg.Response.Header()))
	r.Use(telemetry.Middleware)
	r.Use(middleware.Compress(5))
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Get("/", s.summary)
	r.Get("/*", s.summary)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The service has no downstream dependencies to wait on.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	params, err := parseParams(r)
	if err != nil {
		writeProxyError(w, http.StatusBadRequest, preview.KindInvalidRequest, err.Error())
		return
	}

	result, err := s.summarizer.Summarize(r.Context(), params)
	if err != nil {
		kind := preview.KindOf(err)
		status := statusForKind(kind)
		if status >= http.StatusInternalServerError {
			s.logger.Warn("preview failed",
				zap.String("url", params.URL),
				zap.String("kind", string(kind)),
				zap.String("request_id", requestIDFromContext(r.Context())),
				zap.Error(err),
			)
		}
		writeProxyError(w, status, kind, reason(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseParams reads the preview query string. responseTimeout is in
// milliseconds and contentLengthLimit in bytes; zero leaves either unset.
func parseParams(r *http.Request) (preview.Params, error) {
	q := r.URL.Query()
	params := preview.Params{
		URL:       q.Get("url"),
		Lang:      q.Get("lang"),
		UserAgent: q.Get("userAgent"),
	}
	if params.URL == "" {
		return preview.Params{}, errors.New("url is required")
	}
	if raw := q.Get("responseTimeout"); raw != "" {
		ms, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return preview.Params{}, fmt.Errorf("invalid responseTimeout %q", raw)
		}
		params.Timeout = time.Duration(ms) * time.Millisecond
	}
	if raw := q.Get("contentLengthLimit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit < 0 {
			return preview.Params{}, fmt.Errorf("invalid contentLengthLimit %q", raw)
		}
		params.MaxSize = limit
	}
	return params, nil
}

func statusForKind(kind preview.Kind) int {
	switch kind {
	case preview.KindInvalidRequest:
		return http.StatusBadRequest
	case preview.KindTeapot:
		return http.StatusTeapot
	case preview.KindBadEncoding, preview.KindNoHeadStart, preview.KindNoHeadEnd, preview.KindMalformedMarkup:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// reason is the cause without the kind prefix, e.g. "lengthHint:10>5".
func reason(err error) string {
	var perr *preview.Error
	if errors.As(err, &perr) && perr.Err != nil {
		return perr.Err.Error()
	}
	return err.Error()
}

func writeProxyError(w http.ResponseWriter, status int, kind preview.Kind, msg string) {
	w.Header().Set(proxyErrorHeader, headerSafe(msg))
	body := map[string]string{"error": msg}
	if kind != "" {
		body["kind"] = string(kind)
	}
	writeJSON(w, status, body)
}

func headerSafe(v string) string {
	return strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' || r < 0x20 && r != '\t' {
			return ' '
		}
		return r
	}, v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}
