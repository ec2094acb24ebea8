package preview

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/summaly-go/internal/telemetry"
)

var errMissingURL = errors.New("url is required")

// Options are the process-wide settings a Summarizer shares across requests.
type Options struct {
	// UserAgent is sent when a request does not override it.
	UserAgent string
	// MediaProxy, when set, prefixes rewritten icon and thumbnail URLs.
	MediaProxy string
	// StrictUTF8 fails undeclared documents that are not valid UTF-8 instead
	// of repairing them.
	StrictUTF8 bool
}

// Summarizer builds link previews. It is safe for concurrent use.
type Summarizer struct {
	fetcher Fetcher
	opts    Options
	logger  *zap.Logger
	tracer  trace.Tracer
}

// New constructs a Summarizer around fetcher.
func New(fetcher Fetcher, opts Options, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
		tracer:  otel.Tracer("summaly/preview"),
	}
}

// Summarize fetches params.URL and returns its preview record. Failures are
// *Error values; oEmbed problems never fail the call.
func (s *Summarizer) Summarize(ctx context.Context, params Params) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "preview.Summarize")
	defer span.End()
	span.SetAttributes(attribute.String("summaly.url", params.URL))

	result, err := s.summarize(ctx, params)
	if err != nil {
		outcome := string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		telemetry.ObservePreview(outcome)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.logger.Info("preview failed", zap.String("url", params.URL), zap.String("kind", outcome), zap.Error(err))
		return nil, err
	}
	telemetry.ObservePreview("ok")
	return result, nil
}

func (s *Summarizer) summarize(ctx context.Context, params Params) (*Result, error) {
	if params.URL == "" {
		return nil, NewError(KindInvalidRequest, errMissingURL)
	}

	request := FetchRequest{
		URL:            params.URL,
		UserAgent:      params.UserAgent,
		AcceptLanguage: params.Lang,
		Timeout:        params.Timeout,
		MaxSize:        params.MaxSize,
	}
	if request.UserAgent == "" {
		request.UserAgent = s.opts.UserAgent
	}

	doc, err := s.fetcher.Fetch(ctx, request)
	if err != nil {
		if KindOf(err) == "" {
			err = NewError(KindTransport, err)
		}
		return nil, err
	}
	telemetry.ObserveFetchBytes("document", len(doc.Body))

	text, err := s.decode(ctx, doc)
	if err != nil {
		return nil, err
	}
	nodes, err := s.head(ctx, text)
	if err != nil {
		return nil, err
	}
	agg := aggregateHead(nodes)

	return s.assemble(ctx, params.URL, agg, request), nil
}

func (s *Summarizer) decode(ctx context.Context, doc Document) (string, error) {
	_, span := s.tracer.Start(ctx, "preview.decode")
	defer span.End()

	text, name, err := decodeDocument(doc.Body, doc.ContentType, s.opts.StrictUTF8)
	span.SetAttributes(attribute.String("summaly.charset", name))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	return text, err
}

func (s *Summarizer) head(ctx context.Context, text string) ([]*html.Node, error) {
	_, span := s.tracer.Start(ctx, "preview.head")
	defer span.End()

	nodes, err := extractHead(text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	return nodes, err
}

// assemble resolves aggregated values into the outbound record.
func (s *Summarizer) assemble(ctx context.Context, requestURL string, agg *aggregate, request FetchRequest) *Result {
	base := newPageBase(requestURL)
	result := &Result{
		URL:         requestURL,
		Title:       agg.title.ptr(),
		Description: agg.description.ptr(),
		Sitename:    agg.sitename.ptr(),
	}
	if raw, ok := agg.url.get(); ok {
		if canonical, ok := absoluteURL(raw, base); ok {
			result.URL = canonical
		}
	}

	player := Player{
		URL:    agg.playerURL.ptr(),
		Width:  agg.playerWidth,
		Height: agg.playerHeight,
		Allow:  []string{},
	}
	if agg.oembedHref != "" {
		if embed := s.fetchOEmbed(ctx, agg.oembedHref, base, request); embed != nil {
			result.OEmbed = embed
			if embed.Width != nil {
				player.Width = embed.Width
			}
			if embed.Height != nil {
				player.Height = embed.Height
			}
			if embed.HTML != nil {
				allow, err := allowedFeatures(*embed.HTML)
				if err != nil {
					s.logger.Debug("skip allow filtering", zap.Error(err))
				} else {
					player.Allow = allow
				}
			}
		}
	}
	if player.URL != nil {
		result.Player = &player
	}

	iconRaw, ok := agg.icon.get()
	if !ok {
		iconRaw = base.origin + "/favicon.ico"
	}
	if icon, ok := resolveURL(iconRaw, base, s.opts.MediaProxy, iconProxyFile); ok {
		result.Icon = &icon
	}
	if raw, ok := agg.thumbnail.get(); ok {
		if thumbnail, ok := resolveURL(raw, base, s.opts.MediaProxy, thumbnailProxyFile); ok {
			result.Thumbnail = &thumbnail
		}
	}
	return result
}
