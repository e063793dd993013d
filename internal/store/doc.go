// Package store provides SQLite-backed durable storage for biogate.
//
// The store holds three tables:
//   - Fingerprint templates: one row per identity, overwritten on re-enrollment
//   - Face embeddings: append-only per identity, insertion order preserved
//   - Auth attempts: append-only, hash-chained audit records
//
// # Critical Patterns
//
// Single writer: the pool is limited to one connection, so every write is
// serialized and each write runs in one transaction. Readers never observe
// a partially appended embedding or attempt.
//
// Deterministic order: face embeddings and attempts are always read
// ORDER BY seq ASC. The first-inserted embedding wins distance ties.
//
// Append-only audit: UPDATE and DELETE on auth_attempts are rejected by
// triggers. Every record links to its predecessor through prev_hash.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
//
// Vectors are stored as deterministic CBOR (internal/codec).
package store
