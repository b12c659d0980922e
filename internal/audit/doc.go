// Package audit implements async dispatch of security-relevant events.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, zap, no-op).
//   - [Dispatcher]: buffered relay with drop-if-full or block-if-full semantics.
//   - [Event]: structured audit record (timestamp, type, user, jti, device, metadata).
//
// This package owns buffering and delivery only. Which events are emitted is
// decided by the engine.
package audit
