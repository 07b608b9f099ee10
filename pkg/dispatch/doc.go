// Package dispatch runs parsed requests through the handler chain and fans
// events out to loggers and sniffers.
//
// The dispatcher itself is stateless: sessions share one instance. Observer
// failures (errors, panics) are isolated per invocation and never reach the
// connection that triggered them.
package dispatch
