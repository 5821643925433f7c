// Package challenge issues and verifies the freshness proofs used by passkey
// ceremonies.
//
// Two interchangeable modes satisfy the same verify contract:
//
//   - [Codec] is stateless: the challenge fields are serialized and
//     authenticated with HMAC-SHA-256 under a server-held secret. No storage is
//     required, but the codec alone cannot prevent replay of a still-valid
//     token; callers that need single-use semantics track consumption with
//     [Store.MarkTokenUsed].
//   - [Store] is server-held: the challenge record is kept in Redis keyed by
//     (operation, subject) and deleted on first consumption.
//
// # Architecture boundaries
//
// This package owns the challenge token wire format and nothing else. It never
// inspects attestation or assertion payloads and never talks to the verifier.
package challenge
