package httpmsg

import (
	"net/url"
	"strconv"
	"strings"
)

// SplitTarget splits a request target into path and raw query string.
// Any fragment is stripped; proxies occasionally forward one.
func SplitTarget(target string) (path, query string) {
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target = target[:i]
	}
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i], target[i+1:]
	}
	return target, ""
}

// ParseArguments decodes a raw query string into key/value pairs.
// Duplicate keys resolve last-wins. Components that fail percent-decoding
// are kept verbatim rather than dropped.
func ParseArguments(query string) map[string]string {
	args := make(map[string]string)
	for query != "" {
		var pair string
		pair, query, _ = strings.Cut(query, "&")
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		args[key] = value
	}
	return args
}

// EncodeArguments re-encodes arguments into a query string. Pair order is
// unspecified; use it only for order-insensitive comparisons.
func EncodeArguments(args map[string]string) string {
	v := make(url.Values, len(args))
	for k, val := range args {
		v.Set(k, val)
	}
	return v.Encode()
}

// parseQuality parses a q-value parameter, clamping to [0,1].
// Absent or malformed q-values default to 1.
func parseQuality(s string) float64 {
	q, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 1.0
	}
	if q < 0 {
		return 0
	}
	if q > 1 {
		return 1
	}
	return q
}

// ParseAccept parses an Accept header value into media ranges.
// Parameters before q= belong to the media type; parameters after q= are
// collected into Ext.
func ParseAccept(value string) []MediaRange {
	var out []MediaRange
	for _, item := range splitList(value) {
		parts := strings.Split(item, ";")
		mr := MediaRange{Type: strings.TrimSpace(parts[0]), Quality: 1.0}
		seenQ := false
		for _, p := range parts[1:] {
			k, v, _ := strings.Cut(strings.TrimSpace(p), "=")
			k = strings.TrimSpace(k)
			v = strings.TrimSpace(v)
			switch {
			case !seenQ && strings.EqualFold(k, "q"):
				mr.Quality = parseQuality(v)
				seenQ = true
			case seenQ:
				if mr.Ext == nil {
					mr.Ext = make(map[string]string)
				}
				mr.Ext[k] = v
			default:
				// Media type parameter (ex: charset); keep it attached
				// to the type so round-trips preserve it.
				mr.Type += ";" + k + "=" + v
			}
		}
		if mr.Type != "" {
			out = append(out, mr)
		}
	}
	return out
}

// ParseAcceptLanguage parses an Accept-Language header value.
func ParseAcceptLanguage(value string) []LanguageRange {
	var out []LanguageRange
	for _, item := range splitList(value) {
		tag, q := splitQ(item)
		if tag != "" {
			out = append(out, LanguageRange{Language: tag, Quality: q})
		}
	}
	return out
}

// ParseAcceptEncoding parses an Accept-Encoding header value.
func ParseAcceptEncoding(value string) []Coding {
	var out []Coding
	for _, item := range splitList(value) {
		coding, q := splitQ(item)
		if coding != "" {
			out = append(out, Coding{ContentCoding: coding, Quality: q})
		}
	}
	return out
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func splitQ(item string) (token string, quality float64) {
	quality = 1.0
	token, params, found := strings.Cut(item, ";")
	token = strings.TrimSpace(token)
	if !found {
		return token, quality
	}
	for _, p := range strings.Split(params, ";") {
		k, v, _ := strings.Cut(strings.TrimSpace(p), "=")
		if strings.EqualFold(strings.TrimSpace(k), "q") {
			quality = parseQuality(strings.TrimSpace(v))
			break
		}
	}
	return token, quality
}

// Derive fills every field computed from URL and Headers: Path, Arguments,
// Host, UserAgent, the three Accept lists, CloseConnection and
// UpgradeInsecure. Parsers call it once after the head is assembled.
func (r *Request) Derive() {
	r.Path, _ = SplitTarget(r.URL)
	_, query := SplitTarget(r.URL)
	r.Arguments = ParseArguments(query)

	r.Host, _ = r.Header("Host")
	r.UserAgent, _ = r.Header("User-Agent")

	if v, ok := r.Header("Accept"); ok {
		r.Accept = ParseAccept(v)
	}
	if v, ok := r.Header("Accept-Language"); ok {
		r.AcceptLanguage = ParseAcceptLanguage(v)
	}
	if v, ok := r.Header("Accept-Encoding"); ok {
		r.AcceptEncoding = ParseAcceptEncoding(v)
	}

	conn, _ := r.Header("Connection")
	switch {
	case strings.EqualFold(conn, "close"):
		r.CloseConnection = true
	case r.Protocol == "HTTP/1.0" && !strings.EqualFold(conn, "keep-alive"):
		// HTTP/1.0 closes by default.
		r.CloseConnection = true
	}

	if v, ok := r.Header("Upgrade-Insecure-Requests"); ok {
		r.UpgradeInsecure = strings.TrimSpace(v) == "1"
	}
}
