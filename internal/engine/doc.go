// Package engine implements the FGDB execution engine.
//
// The engine turns registration requests and operation expressions into
// committed graph mutations. Every mutating call runs one cycle under the
// store lock:
//
//  1. Lock the store and load the snapshot
//  2. Build the new snapshot copy-on-write (graph.WithBlock / WithExecution)
//  3. Store the new block payload
//  4. Save the snapshot in one transaction, or remove the payload on failure
//
// An operation moves through Parsed → Resolved → Invoked and ends either
// Committed (graph updated, output block returned) or Failed (graph and
// snapshot unchanged, error surfaced). Nothing is retried automatically.
//
// Function blocks run as child processes in their own process group with
// two positional arguments: the materialized input directory and an empty
// output directory. Each run gets a scratch directory under work/<run id>.
//
// ORDERING:
//
// Commits are stamped with a logical sequence number resumed from the
// loaded snapshot (Clock). Wall-clock time is recorded for display only and
// never orders anything.
package engine
