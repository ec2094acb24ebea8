package preview

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const oembedType = "application/json+oembed"

// Source ranks. A higher rank always replaces a lower one.
const (
	rankFallback  = 1
	rankTag       = 2
	rankOpenGraph = 3
)

// rankedValue holds the winning candidate for one result field.
type rankedValue struct {
	value string
	rank  int
	set   bool
}

// offer considers value from a source of the given rank. Equal ranks replace
// the current value unless firstWins is set for that source.
func (v *rankedValue) offer(value string, rank int, firstWins bool) {
	if value == "" {
		return
	}
	if v.set && (rank < v.rank || (rank == v.rank && firstWins)) {
		return
	}
	v.value, v.rank, v.set = value, rank, true
}

func (v rankedValue) get() (string, bool) {
	return v.value, v.set
}

func (v rankedValue) ptr() *string {
	if !v.set {
		return nil
	}
	s := v.value
	return &s
}

// aggregate accumulates metadata over one walk of the head fragment.
type aggregate struct {
	url         rankedValue
	title       rankedValue
	description rankedValue
	icon        rankedValue
	thumbnail   rankedValue
	sitename    rankedValue

	playerURL    rankedValue
	playerWidth  *float64
	playerHeight *float64

	// oembedHref is the first application/json+oembed alternate link.
	oembedHref string
}

// aggregateHead walks the fragment in document order.
func aggregateHead(nodes []*html.Node) *aggregate {
	agg := &aggregate{}
	for _, n := range nodes {
		agg.walk(n)
	}
	return agg
}

func (a *aggregate) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Meta:
			a.meta(n)
		case atom.Link:
			a.link(n)
		case atom.Title:
			a.title.offer(directText(n), rankTag, false)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		a.walk(c)
	}
}

func (a *aggregate) meta(n *html.Node) {
	key, ok := attr(n, "property")
	if !ok || strings.TrimSpace(key) == "" {
		key, _ = attr(n, "name")
	}
	content, ok := attr(n, "content")
	if !ok {
		return
	}

	switch strings.ToLower(strings.TrimSpace(key)) {
	case "og:url":
		a.url.offer(content, rankOpenGraph, false)
	case "og:title":
		a.title.offer(content, rankOpenGraph, false)
	case "application-name":
		a.title.offer(content, rankFallback, false)
		a.sitename.offer(content, rankFallback, false)
	case "og:description":
		a.description.offer(content, rankOpenGraph, false)
	case "description":
		a.description.offer(content, rankTag, false)
	case "msapplication-tooltip":
		a.description.offer(content, rankFallback, false)
	case "og:site_name":
		a.sitename.offer(content, rankTag, false)
	case "og:image":
		a.thumbnail.offer(content, rankTag, false)
	case "og:video:secure_url":
		a.playerURL.offer(content, rankTag, false)
	case "og:video:url", "og:video":
		a.playerURL.offer(content, rankFallback, true)
	case "og:video:width":
		if v, err := strconv.ParseFloat(strings.TrimSpace(content), 64); err == nil {
			a.playerWidth = &v
		}
	case "og:video:height":
		if v, err := strconv.ParseFloat(strings.TrimSpace(content), 64); err == nil {
			a.playerHeight = &v
		}
	}
}

func (a *aggregate) link(n *html.Node) {
	rel, _ := attr(n, "rel")
	href, ok := attr(n, "href")
	if !ok {
		return
	}

	switch strings.Join(strings.Fields(strings.ToLower(rel)), " ") {
	case "icon":
		a.icon.offer(href, rankTag, false)
	case "shortcut icon":
		a.icon.offer(href, rankFallback, true)
	case "apple-touch-icon":
		a.thumbnail.offer(href, rankFallback, true)
	case "alternate":
		typ, _ := attr(n, "type")
		if a.oembedHref == "" && strings.EqualFold(strings.TrimSpace(typ), oembedType) {
			a.oembedHref = href
		}
	}
}

// directText joins the text children of n, ignoring nested elements.
func directText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}
