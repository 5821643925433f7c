// Package goPasskey provides a WebAuthn passkey ceremony engine: stateless or
// server-held challenge issuance, Redis-backed rate limiting with escalating
// lockout, a credential repository with signature-counter clone detection, and
// one-time session hand-off after successful authentication.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goPasskey is the public surface. It exposes [Engine], [Builder], [Config], and value
// types (RegistrationOptions, AuthenticationResult, MetricsSnapshot, etc.). The
// cryptographic ceremony itself is delegated to a [Verifier] collaborator — by default
// an adapter over github.com/go-webauthn/webauthn — and the engine never parses COSE
// keys or validates signatures on its own.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Interpret a verifier fault or timeout as a verification rejection.
//   - Issue a session hand-off on any path other than a fully verified
//     authentication with a committed counter update.
//
// # Failure scoping
//
// Every failure is scoped to the single ceremony invocation; a failed ceremony leaves
// other credentials and other subjects untouched. A counter regression is the one error
// with a side effect: the credential is marked compromised before
// [ErrPotentialCompromise] is returned.
package goPasskey
