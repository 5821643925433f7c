// Package session mints and redeems one-time hand-off grants: short-lived
// secrets a client exchanges for a full application session after a
// successful passkey ceremony.
//
// # Grant shape
//
// Grants are HS256 JWTs carrying the user handle as subject. The jti is
// registered in Redis at issue time and burned on first redemption, so a
// grant is single-use even when the JWT itself is still within its lifetime.
//
// # Architecture boundaries
//
// This package owns grant minting and redemption only. It does NOT run
// ceremonies, touch credentials, or decide when a hand-off is warranted —
// those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import goPasskey or credential (no upward imports).
//   - Issue long-lived application sessions; a grant is an exchange voucher.
//   - Accept a grant whose jti record is missing, whatever the signature says.
package session
