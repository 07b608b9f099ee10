// Package session owns one client connection end to end: the raw stream,
// the optional wrapper-decorated stream, a dedicated parser instance, and
// the read/parse/dispatch/write cycle for the connection's lifetime.
//
// A session runs as a state machine on its own goroutine. Within a session,
// parsing and dispatching are strictly sequential, so responses always go
// out in the order their requests were parsed. Across sessions there is no
// shared mutable state beyond the immutable registry.
package session
