// Package credential stores public-key authenticator records per subject and
// implements signature-counter clone detection as a first-class operation.
//
// # Storage model
//
// A subject's credentials are persisted as one JSON document (an array of
// records) under the subject's key, plus a global index from credential ID to
// owning subject. The [Repository] owns the domain rules (global uniqueness,
// counter monotonicity, status transitions); a [Backend] owns durability and
// the atomicity of read-modify-write cycles.
//
// Three backends ship with the package:
//   - [RedisBackend]: WATCH-guarded optimistic transactions, safe across processes.
//   - [MemoryBackend]: process-lifetime maps guarded by a mutex, for tests and
//     single-node fallback. Drop-in equivalent except durability.
//   - [DirectoryBackend]: credentials ride inside an external user directory's
//     per-user blob storage. Serialized per subject by local mutexes since the
//     directory offers no conditional writes.
//
// # Counter semantics
//
// The signature counter never decreases. A reported counter below the stored
// value fails with [ErrCounterRegression] and leaves the stored value intact;
// equality is accepted because some authenticators never increment.
package credential
