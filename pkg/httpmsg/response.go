package httpmsg

import (
	"fmt"
	"net/textproto"
	"strconv"
	"strings"
)

// Response is the mutable accumulator the handler chain builds a reply in.
// It starts at status 200 with no headers and no body; once a handler sets a
// status outside the 2xx range the response is final and no later handler in
// the chain runs.
type Response struct {
	// Status is the HTTP status code. Defaults to 200.
	Status int

	headers map[string]string
	order   []string

	// Body is the response body, nil when absent.
	Body []byte
}

// NewResponse returns a fresh response with status 200, no headers and no body.
func NewResponse() *Response {
	return &Response{Status: 200}
}

// SetHeader sets a header, replacing any prior value under the same
// case-insensitive name. First-set order is preserved for serialization.
func (r *Response) SetHeader(name, value string) {
	key := textproto.CanonicalMIMEHeaderKey(name)
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	if _, exists := r.headers[key]; !exists {
		r.order = append(r.order, key)
	}
	r.headers[key] = value
}

// GetHeader looks up a header value by name, case-insensitively.
func (r *Response) GetHeader(name string) (string, bool) {
	v, ok := r.headers[textproto.CanonicalMIMEHeaderKey(name)]
	return v, ok
}

// Headers returns a copy of the header map.
func (r *Response) Headers() map[string]string {
	out := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		out[k] = v
	}
	return out
}

// HeaderCount returns the number of headers set.
func (r *Response) HeaderCount() int {
	return len(r.headers)
}

// Clone returns a deep copy of the response, preserving header order.
func (r *Response) Clone() *Response {
	out := &Response{Status: r.Status}
	out.Body = append([]byte(nil), r.Body...)
	if r.headers != nil {
		out.headers = make(map[string]string, len(r.headers))
		for k, v := range r.headers {
			out.headers[k] = v
		}
		out.order = append([]string(nil), r.order...)
	}
	return out
}

// Terminal reports whether the status code finalizes the response,
// stopping the handler chain.
func (r *Response) Terminal() bool {
	return r.Status < 200 || r.Status > 299
}

// StatusText returns the reason phrase for common status codes, or "Unknown"
// for codes without one.
func StatusText(code int) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return "Unknown"
}

var statusText = map[int]string{
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	206: "Partial Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	411: "Length Required",
	413: "Payload Too Large",
	414: "URI Too Long",
	426: "Upgrade Required",
	429: "Too Many Requests",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	505: "HTTP Version Not Supported",
}

// MarshalHTTP serializes the response to HTTP/1.1 wire form. A
// Content-Length header reflecting the body is always emitted; an explicit
// Content-Length set by a handler is overridden to keep framing honest.
func (r *Response) MarshalHTTP() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.Status, StatusText(r.Status))
	for _, key := range r.order {
		if key == "Content-Length" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\r\n", key, r.headers[key])
	}
	b.WriteString("Content-Length: " + strconv.Itoa(len(r.Body)) + "\r\n\r\n")
	out := append([]byte(b.String()), r.Body...)
	return out
}
