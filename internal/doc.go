// Package internal contains helpers private to deviceauth, currently the
// random identifier generator used for access-token JTIs.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators for every Engine operation
//   - rate: Redis-backed login and refresh throttling
package internal
