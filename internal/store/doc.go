// Package store provides SQLite-backed durable storage for FGDB graph
// snapshots.
//
// A store directory holds:
//   - fgdb.db: the snapshot database
//   - fgdb.lock: advisory lock held for each load, mutate, save cycle
//   - blocks/: block payloads (see package block)
//
// The database holds exactly one snapshot:
//   - snapshot_meta: format version and the two root IDs
//   - nodes: the block arena shared by both graphs
//   - registration_edges: Management Graph edges
//   - og_nodes: Operation Graph membership
//   - execution_edges, execution_inputs: Operation Graph edges
//
// # Critical Patterns
//
// Atomic saves: Save validates the snapshot, then replaces every row inside
// one transaction. A crash mid-save leaves the previous snapshot intact.
//
// Deterministic reads: all queries order by an explicit position or commit
// order column, never by rowid or wall time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
