// Package rate provides internal primitives used to build Redis-backed rate limit keys,
// errors, and limiter behavior for passkey ceremony admission control.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - pkrl: — per (operation, caller) ceremony window
//   - pklo: — per-subject consecutive-failure tally
//
// # What this package must NOT do
//
//   - Implement ceremony-specific policies (those live in the engine).
//   - Be imported outside the goPasskey module.
package rate
