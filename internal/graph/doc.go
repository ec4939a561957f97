// Package graph holds the in-memory Management Graph (MG) and Operation
// Graph (OG) over a shared arena of block nodes.
//
// The MG is a tree rooted at the MG root sentinel: every registered block
// hangs off the block registered before it. The OG is a DAG of executions,
// with edges from consumed data blocks to the data block they produced.
//
// # Copy-on-write commits
//
// A Graph is immutable once built. WithBlock and WithExecution validate the
// mutation against the current graph and return a new Graph; the caller
// persists the new snapshot and only then swaps it in. A failed mutation
// leaves the original Graph untouched, which is what makes a failed
// operation invisible to the persisted snapshot.
package graph
