// Package module defines the contracts between the server core and its
// plugins: loggers, an optional connection wrapper, a parser, the ordered
// handler chain, and sniffers.
//
// The core never constructs plugins itself. A Provider hands it
// already-built instances, which keeps the orchestration engine fully
// decoupled from whatever loading mechanism (static wiring, shared
// libraries, ...) produced them.
package module
