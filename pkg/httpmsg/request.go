package httpmsg

import "net/textproto"

// MediaRange is one entry of an Accept header: a media type with its quality
// and any extension parameters that followed q=.
type MediaRange struct {
	// Type is the media type, possibly wildcarded (ex: "text/html", "*/*").
	Type string
	// Quality is the q-value, 0.0 to 1.0.
	Quality float64
	// Ext holds extension parameters after the q parameter.
	Ext map[string]string
}

// LanguageRange is one entry of an Accept-Language header.
type LanguageRange struct {
	// Language is the language tag (ex: "en-US").
	Language string
	// Quality is the q-value, 0.0 to 1.0.
	Quality float64
}

// Coding is one entry of an Accept-Encoding header.
type Coding struct {
	// ContentCoding is the coding name (ex: "gzip").
	ContentCoding string
	// Quality is the q-value, 0.0 to 1.0.
	Quality float64
}

// Request is a parsed HTTP/1.1 request. Parsers build one, call Derive, and
// emit it; after emission it must be treated as immutable.
type Request struct {
	// Raw is the request exactly as read off the wire.
	Raw []byte

	// Lines is the head of the request split line by line.
	Lines []string

	// Method is the request method.
	Method Method

	// URL is the request target as sent, query string included
	// (ex: "/login.html?username=John").
	URL string

	// Path is URL with the query string and fragment stripped.
	Path string

	// Arguments is the decoded query string of URL. Duplicate keys resolve
	// last-wins.
	Arguments map[string]string

	// Protocol is the protocol token of the request line (ex: "HTTP/1.1").
	Protocol string

	// Headers maps canonicalized header names to values. Use Header for
	// case-insensitive lookup.
	Headers map[string]string

	// Host is the Host header value.
	Host string

	// UserAgent is the User-Agent header value.
	UserAgent string

	// Accept is the parsed Accept header.
	Accept []MediaRange

	// AcceptLanguage is the parsed Accept-Language header.
	AcceptLanguage []LanguageRange

	// AcceptEncoding is the parsed Accept-Encoding header.
	AcceptEncoding []Coding

	// Body is the request body, nil when absent.
	Body []byte

	// CloseConnection reports whether the connection must be closed after
	// the response is written.
	CloseConnection bool

	// UpgradeInsecure reports whether the client sent
	// Upgrade-Insecure-Requests: 1.
	UpgradeInsecure bool
}

// CanonicalHeader returns the canonical form of a header name, the form
// Headers is keyed by (ex: "content-length" -> "Content-Length").
func CanonicalHeader(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}

// Header looks up a header value by name, case-insensitively.
func (r *Request) Header(name string) (string, bool) {
	v, ok := r.Headers[CanonicalHeader(name)]
	return v, ok
}

// SetHeader stores a header value under its canonical name. Intended for
// parsers assembling a request; emitted requests are immutable.
func (r *Request) SetHeader(name, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[CanonicalHeader(name)] = value
}
