package preview

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
)

const (
	metaPrefix = "<meta "
	// minSniffConfidence is the chardet confidence (0-100) required before a
	// sniffed charset replaces lossy UTF-8 repair.
	minSniffConfidence = 50
)

var errInvalidUTF8 = errors.New("invalid utf-8 sequence in undeclared document")

// charsetHints are the in-document declarations found by scanMetaHints.
type charsetHints struct {
	// contentType is the content attribute of <meta http-equiv="content-type">.
	contentType string
	// charset is the value of <meta charset>.
	charset string
}

// scanMetaHints walks raw bytes looking for "<meta " and tokenizes each tag it
// finds on its own, so hints are recovered before the body is decoded at all.
// Later declarations overwrite earlier ones.
func scanMetaHints(body []byte) charsetHints {
	var hints charsetHints
	matched := 0
	var tag []byte
	for _, b := range body {
		if matched < len(metaPrefix) {
			switch {
			case lowerASCII(b) == metaPrefix[matched]:
				matched++
			case b == '<':
				matched = 1
			default:
				matched = 0
			}
			continue
		}
		if b == '>' {
			hints.apply(tag)
			tag = tag[:0]
			matched = 0
			continue
		}
		tag = append(tag, b)
	}
	return hints
}

func (h *charsetHints) apply(attrs []byte) {
	if !utf8.Valid(attrs) {
		return
	}
	z := html.NewTokenizer(strings.NewReader(metaPrefix + string(attrs) + ">"))
	if tt := z.Next(); tt != html.StartTagToken && tt != html.SelfClosingTagToken {
		return
	}
	var httpEquiv, content, metaCharset string
	var hasContent, hasCharset bool
	_, more := z.TagName()
	for more {
		var key, val []byte
		key, val, more = z.TagAttr()
		switch string(key) {
		case "http-equiv":
			httpEquiv = string(val)
		case "content":
			content, hasContent = string(val), true
		case "charset":
			metaCharset, hasCharset = string(val), true
		}
	}
	if strings.EqualFold(strings.TrimSpace(httpEquiv), "content-type") && hasContent {
		h.contentType = content
	}
	if hasCharset {
		h.charset = metaCharset
	}
}

// charsetParam returns the last charset= parameter in a Content-Type value.
func charsetParam(contentType string) string {
	var label string
	for _, part := range strings.Split(contentType, ";") {
		part = strings.TrimSpace(part)
		if len(part) < len("charset=") || !strings.EqualFold(part[:len("charset=")], "charset=") {
			continue
		}
		label = strings.Trim(strings.TrimSpace(part[len("charset="):]), `"'`)
	}
	return label
}

// resolveEncoding applies the declaration precedence: transport header, then
// http-equiv, then <meta charset>. Unknown labels are skipped. A nil encoding
// means the body is treated as UTF-8.
func resolveEncoding(headerContentType string, hints charsetHints) (encoding.Encoding, string) {
	var (
		enc  encoding.Encoding
		name string
	)
	for _, label := range []string{
		charsetParam(headerContentType),
		charsetParam(hints.contentType),
		strings.TrimSpace(hints.charset),
	} {
		if label == "" {
			continue
		}
		if e, canonical := charset.Lookup(label); e != nil {
			enc, name = e, canonical
		}
	}
	if name == "utf-8" {
		return nil, name
	}
	return enc, name
}

// decodeDocument converts body to UTF-8 text and reports the charset used.
func decodeDocument(body []byte, headerContentType string, strict bool) (string, string, error) {
	enc, name := resolveEncoding(headerContentType, scanMetaHints(body))
	if enc != nil {
		out, err := enc.NewDecoder().Bytes(body)
		if err != nil {
			return "", name, NewError(KindBadEncoding, fmt.Errorf("decode %s: %w", name, err))
		}
		return string(out), name, nil
	}

	if utf8.Valid(body) {
		return string(body), "utf-8", nil
	}
	if strict {
		return "", "utf-8", NewError(KindBadEncoding, errInvalidUTF8)
	}
	if text, sniffed, ok := sniffDecode(body); ok {
		return text, sniffed, nil
	}
	return strings.ToValidUTF8(string(body), "\uFFFD"), "utf-8", nil
}

// sniffDecode guesses the charset of an undeclared, non-UTF-8 body.
func sniffDecode(body []byte) (string, string, bool) {
	best, err := chardet.NewHtmlDetector().DetectBest(body)
	if err != nil || best == nil || best.Confidence < minSniffConfidence {
		return "", "", false
	}
	enc, name := charset.Lookup(best.Charset)
	if enc == nil || name == "utf-8" {
		return "", "", false
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", "", false
	}
	return string(out), name, true
}

func lowerASCII(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
