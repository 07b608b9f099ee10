package httpmsg

import (
	"errors"
	"fmt"
)

// Method is one of the eleven HTTP/1.1 request methods.
type Method int

// HTTP/1.1 methods.
const (
	MethodOptions Method = iota
	MethodGet
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
	MethodTrace
	MethodConnect
	MethodPatch
	MethodLink
	MethodUnlink
)

// ErrUnknownMethod is returned when a request method token is not one of the
// eleven HTTP/1.1 methods.
var ErrUnknownMethod = errors.New("unknown HTTP method")

var methodNames = map[Method]string{
	MethodOptions: "OPTIONS",
	MethodGet:     "GET",
	MethodHead:    "HEAD",
	MethodPost:    "POST",
	MethodPut:     "PUT",
	MethodDelete:  "DELETE",
	MethodTrace:   "TRACE",
	MethodConnect: "CONNECT",
	MethodPatch:   "PATCH",
	MethodLink:    "LINK",
	MethodUnlink:  "UNLINK",
}

var methodValues = func() map[string]Method {
	m := make(map[string]Method, len(methodNames))
	for k, v := range methodNames {
		m[v] = k
	}
	return m
}()

// String returns the wire form of the method.
func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod parses a method token. The match is case-sensitive per RFC 7230,
// method tokens are uppercase on the wire.
func ParseMethod(s string) (Method, error) {
	if m, ok := methodValues[s]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}
