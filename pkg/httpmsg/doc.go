// Package httpmsg defines the request and response types exchanged between
// the parser, the handler chain, and the connection session.
//
// A Request is immutable once a parser emits it. A Response is a mutable
// accumulator that handlers build up across the chain; a status code outside
// the 2xx range marks it final.
package httpmsg
