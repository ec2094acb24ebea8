package preview

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// TeapotScheme is a reserved URL prefix used by liveness probes. Fetchers
// answer it with KindTeapot without touching the network.
const TeapotScheme = "coffee://"

// Params is a single inbound preview request.
type Params struct {
	URL       string
	Lang      string
	UserAgent string
	// Timeout overrides the configured fetch timeout when shorter. Zero means unset.
	Timeout time.Duration
	// MaxSize overrides the configured body cap when smaller. Zero means unset.
	MaxSize int64
}

// FetchRequest describes one outbound GET.
type FetchRequest struct {
	URL            string
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	MaxSize        int64
}

// Document is the raw payload returned by a Fetcher.
type Document struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Result is the JSON record returned to callers.
type Result struct {
	URL         string  `json:"url"`
	Title       *string `json:"title"`
	Icon        *string `json:"icon"`
	Description *string `json:"description"`
	Thumbnail   *string `json:"thumbnail"`
	Sitename    *string `json:"sitename"`
	Player      *Player `json:"player"`
	Sensitive   bool    `json:"sensitive"`
	ActivityPub *string `json:"activityPub"`
	OEmbed      *OEmbed `json:"oembed"`
}

// Player describes an embeddable media player. A Result only carries a
// Player whose URL is set.
type Player struct {
	URL    *string  `json:"url"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
	Allow  []string `json:"allow"`
}

// OEmbed mirrors the oEmbed 1.0 response schema.
type OEmbed struct {
	Type            string   `json:"type"`
	Version         string   `json:"version"`
	Title           *string  `json:"title,omitempty"`
	AuthorName      *string  `json:"author_name,omitempty"`
	AuthorURL       *string  `json:"author_url,omitempty"`
	ProviderName    *string  `json:"provider_name,omitempty"`
	ProviderURL     *string  `json:"provider_url,omitempty"`
	CacheAge        *float64 `json:"cache_age,omitempty"`
	ThumbnailURL    *string  `json:"thumbnail_url,omitempty"`
	ThumbnailWidth  *float64 `json:"thumbnail_width,omitempty"`
	ThumbnailHeight *float64 `json:"thumbnail_height,omitempty"`
	URL             *string  `json:"url,omitempty"`
	HTML            *string  `json:"html,omitempty"`
	Width           *float64 `json:"width,omitempty"`
	Height          *float64 `json:"height,omitempty"`
}

// UnmarshalJSON decodes an oEmbed document. Providers disagree on number
// encoding, so "version" may be a string or a number and the numeric fields
// may be numbers or numeric strings; unparsable numbers are dropped.
func (o *OEmbed) UnmarshalJSON(data []byte) error {
	type plain OEmbed
	aux := struct {
		*plain
		Version         json.RawMessage `json:"version"`
		CacheAge        json.RawMessage `json:"cache_age"`
		ThumbnailWidth  json.RawMessage `json:"thumbnail_width"`
		ThumbnailHeight json.RawMessage `json:"thumbnail_height"`
		Width           json.RawMessage `json:"width"`
		Height          json.RawMessage `json:"height"`
	}{plain: (*plain)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	o.Version = flexString(aux.Version)
	o.CacheAge = flexFloat(aux.CacheAge)
	o.ThumbnailWidth = flexFloat(aux.ThumbnailWidth)
	o.ThumbnailHeight = flexFloat(aux.ThumbnailHeight)
	o.Width = flexFloat(aux.Width)
	o.Height = flexFloat(aux.Height)
	return nil
}

func flexString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	return ""
}

func flexFloat(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return &v
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		return nil
	}
	return &v
}
