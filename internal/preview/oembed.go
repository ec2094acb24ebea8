package preview

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/summaly-go/internal/telemetry"
)

// allowedPermissions are the iframe permission-policy tokens a player may keep.
var allowedPermissions = []string{
	"autoplay",
	"clipboard-write",
	"fullscreen",
	"encrypted-media",
	"picture-in-picture",
	"web-share",
}

var errIncompleteOEmbed = errors.New("oembed document missing type or version")

// fetchOEmbed resolves, fetches and decodes the discovered oEmbed endpoint.
// Every failure is logged and reported as nil so the preview still succeeds.
func (s *Summarizer) fetchOEmbed(ctx context.Context, href string, base pageBase, request FetchRequest) *OEmbed {
	ctx, span := s.tracer.Start(ctx, "preview.oembed")
	defer span.End()

	outcome, doc := s.loadOEmbed(ctx, href, base, request)
	telemetry.ObserveOEmbed(outcome)
	span.SetAttributes(attribute.String("summaly.oembed.outcome", outcome))
	if doc == nil {
		span.SetStatus(codes.Error, outcome)
	}
	return doc
}

func (s *Summarizer) loadOEmbed(ctx context.Context, href string, base pageBase, request FetchRequest) (string, *OEmbed) {
	logger := s.logger.With(zap.String("href", href))

	decoded, err := unescapeHref(href)
	if err != nil {
		logger.Debug("skip oembed: undecodable href", zap.Error(err))
		return "bad_href", nil
	}
	endpoint, ok := absoluteURL(decoded, base)
	if !ok {
		return "bad_href", nil
	}

	request.URL = endpoint
	request.AcceptLanguage = ""
	doc, err := s.fetcher.Fetch(ctx, request)
	if err != nil {
		logger.Info("oembed fetch failed", zap.String("endpoint", endpoint), zap.Error(err))
		return "fetch_error", nil
	}
	telemetry.ObserveFetchBytes("oembed", len(doc.Body))

	var embed OEmbed
	if err := json.Unmarshal(doc.Body, &embed); err != nil {
		logger.Info("oembed decode failed", zap.String("endpoint", endpoint), zap.Error(err))
		return "decode_error", nil
	}
	if embed.Type == "" || embed.Version == "" {
		logger.Info("oembed rejected", zap.String("endpoint", endpoint), zap.Error(errIncompleteOEmbed))
		return "invalid", nil
	}
	return "ok", &embed
}

// unescapeHref percent-decodes an attribute value. Entities were already
// decoded by the HTML parser.
func unescapeHref(href string) (string, error) {
	return url.PathUnescape(strings.TrimSpace(href))
}

// allowedFeatures scans every element of an oEmbed html snippet for an allow
// attribute and keeps the permitted tokens in first-seen order.
func allowedFeatures(snippet string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snippet))
	if err != nil {
		return nil, err
	}
	features := []string{}
	doc.Find("[allow]").Each(func(_ int, sel *goquery.Selection) {
		value, _ := sel.Attr("allow")
		for _, token := range strings.Split(value, ";") {
			token = strings.TrimSpace(token)
			if slices.Contains(allowedPermissions, token) && !slices.Contains(features, token) {
				features = append(features, token)
			}
		}
	})
	return features, nil
}
