// Package store provides SQLite-backed durable storage for swapchain.
//
// The store holds:
//   - Chains and their participants, guarded by a version column
//   - Executions: completed results keyed by execution attempt id
//   - Chain Events: an append-only audit log of status transitions
//   - Items, Want Criteria, Wallets and Ledger Entries, so the CLI can run
//     the engine against a local directory and wallet
//
// # Critical Patterns
//
// Optimistic chain writes
//   - UPDATE ... WHERE id = ? AND version = ?
//   - Zero rows affected means another writer got there first
//
// Guarded item writes
//   - Status changes are a single conditional UPDATE on (status, tag)
//
// Deterministic query results
//   - Every list query has a total ORDER BY
//
// # Database Configuration
//
// Connection settings travel in the DSN so every pooled connection gets
// them: WAL journal, synchronous=NORMAL, a 5s busy timeout, foreign keys
// on, and BEGIN IMMEDIATE for write transactions.
//
// schema.sql creates every object idempotently. Indexes added after the
// first release are also listed as numbered migrations; the applied
// number is kept in PRAGMA user_version.
package store
