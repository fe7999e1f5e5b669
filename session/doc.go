// Package session provides the Redis-backed session store used by the
// authentication engine.
//
// # Key layout
//
// Every session is a Redis hash at "session:{sessionId}" holding the owning
// account id, creation time and client metadata. Each account additionally
// owns a set at "acct_sessions:{accountId}" listing its session ids. Both
// prefixes are configurable.
//
// # Atomicity
//
// The pairing between a session record and its index membership is only ever
// changed by the Lua scripts in this package, so readers never observe a
// record without its index entry. Index entries whose records have expired
// are tolerated and pruned lazily on the next create for that account.
// Validation refreshes the record and index TTLs but never changes index
// membership.
//
// # What this package must NOT do
//
//   - Import authsvc (no upward imports).
//   - Decide whether an account may log in.
//   - Store credentials or plaintext secrets in session records.
package session
