package preview

import (
	"net"
	"net/url"
	"strings"
)

// Media proxy endpoints per rewritten field.
const (
	iconProxyFile      = "icon.webp"
	thumbnailProxyFile = "thumbnail.webp"
)

const fallbackBase = "https://localhost"

// pageBase is the request URL and its origin, used to absolutize values.
type pageBase struct {
	url    *url.URL
	origin string
}

// newPageBase parses the request URL. Anything without a scheme and host
// falls back to https://localhost.
func newPageBase(raw string) pageBase {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		u, _ = url.Parse(fallbackBase)
	}
	return pageBase{url: u, origin: originOf(u)}
}

// originOf renders scheme://host with the port only when it is not the
// scheme default.
func originOf(u *url.URL) string {
	host := u.Hostname()
	port := u.Port()
	switch {
	case port != "" && port != defaultPort(u.Scheme):
		host = net.JoinHostPort(host, port)
	case strings.Contains(host, ":"):
		host = "[" + host + "]"
	}
	return strings.ToLower(u.Scheme) + "://" + host
}

func defaultPort(scheme string) string {
	switch strings.ToLower(scheme) {
	case "http", "ws":
		return "80"
	case "https", "wss":
		return "443"
	}
	return ""
}

// resolveURL absolutizes raw against base and, when mediaProxy and proxyFile
// are both set, wraps it as {mediaProxy}{proxyFile}?url={escaped}.
func resolveURL(raw string, base pageBase, mediaProxy, proxyFile string) (string, bool) {
	abs, ok := absoluteURL(raw, base)
	if !ok {
		return "", false
	}
	if mediaProxy == "" || proxyFile == "" {
		return abs, true
	}
	return mediaProxy + proxyFile + "?url=" + escapeComponent(abs), true
}

func absoluteURL(raw string, base pageBase) (string, bool) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return "", false
	case strings.HasPrefix(raw, "//"):
		return base.url.Scheme + ":" + raw, true
	case strings.HasPrefix(raw, "/"):
		return base.origin + raw, true
	case hasScheme(raw):
		return raw, true
	}
	return base.origin + resolveRelative(base.url.EscapedPath(), raw), true
}

// hasScheme reports whether raw starts with an RFC 3986 scheme and a colon.
func hasScheme(raw string) bool {
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' || c == '+' || c == '-' || c == '.':
			if i == 0 {
				return false
			}
		case c == ':':
			return i > 0
		default:
			return false
		}
	}
	return false
}

// resolveRelative merges a relative reference into the directory of
// basePath, collapsing dot segments. Query and fragment are kept verbatim.
func resolveRelative(basePath, ref string) string {
	refPath, suffix := ref, ""
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		refPath, suffix = ref[:i], ref[i:]
	}
	if basePath == "" {
		basePath = "/"
	}
	if refPath == "" {
		return basePath + suffix
	}

	dir := basePath[:strings.LastIndexByte(basePath, '/')+1]
	var segments []string
	for _, seg := range strings.Split(dir+refPath, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(segments) > 0 {
				segments = segments[:len(segments)-1]
			}
		default:
			segments = append(segments, seg)
		}
	}

	out := "/" + strings.Join(segments, "/")
	if len(segments) > 0 && endsInDirectory(refPath) {
		out += "/"
	}
	return out + suffix
}

func endsInDirectory(p string) bool {
	return strings.HasSuffix(p, "/") || p == "." || p == ".." ||
		strings.HasSuffix(p, "/.") || strings.HasSuffix(p, "/..")
}

// escapeComponent percent-encodes s for use as a query value, spaces as %20.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
