// Package rate provides Redis-backed fixed-window counters for login and
// refresh throttling.
//
// # Window semantics
//
// INCR + EXPIRE on first hit. Key prefixes:
//   - rl:login:email: failed logins per normalized email
//   - rl:login:ip:    failed logins per client IP
//   - rl:refresh:     refreshes per device (refresh token row id)
package rate
