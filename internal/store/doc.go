// Package store provides the SQLite-backed run ledger.
//
// Every experiment run can be recorded with the inputs that produced it,
// its output directory, its final status and its numeric metrics, so sweeps
// can be queried after the fact without walking output directories.
//
// # Tables
//
//   - runs: one row per run, keyed by run ID (UUIDv7)
//   - metrics: (run_id, role, rep, name) → value, role is base or target
//
// # Ordering
//
// ListRuns orders by started_at, then id. UUIDv7 IDs sort by creation time,
// so ties are broken in creation order.
//
// # Connection
//
// Pragmas are set through the go-sqlite3 DSN: WAL journal, synchronous
// NORMAL, a 5s busy timeout and foreign keys on. The schema version lives
// in user_version; Open applies pending migrations in one transaction and
// refuses a ledger written by a newer binary.
package store
