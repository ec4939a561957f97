package ir

import (
	"fmt"
	"time"
)

// Kind classifies a block.
type Kind string

const (
	// KindRoot marks the sentinel node at the root of the MG or the OG.
	KindRoot Kind = "root"

	// KindFunction marks an executable transform.
	KindFunction Kind = "function"

	// KindData marks a payload consumed or produced by executions.
	KindData Kind = "data"
)

// Root node names, as shown in listings.
const (
	MGRootName = "MG_ROOT"
	OGRootName = "OG_ROOT"
)

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindRoot, KindFunction, KindData:
		return k, nil
	default:
		return "", fmt.Errorf("unknown block kind %q", s)
	}
}

// BlockNode is a registered block. It is the node type of both graphs.
type BlockNode struct {
	ID         string    `json:"id"`          // Content-addressed hash code, never recomputed
	Kind       Kind      `json:"kind"`
	Name       string    `json:"name"`        // Not unique; NFC normalized
	CreatedAt  time.Time `json:"created_at"`  // Wall clock, display only
	SourcePath string    `json:"source_path"` // Where the payload was registered from
	Digest     string    `json:"digest"`      // Payload tree digest (empty for roots)
	Seq        int64     `json:"seq"`         // Commit sequence number
}

// RegistrationEdge links a block to its parent in the Management Graph.
type RegistrationEdge struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
	Order  int64  `json:"order"` // Commit sequence number of the child
}

// ExecutionEdge records one execution in the Operation Graph:
// Output = Function(Inputs...).
type ExecutionEdge struct {
	RunID      string    `json:"run_id"`
	Inputs     []string  `json:"inputs"`
	Function   string    `json:"function"`
	Output     string    `json:"output"` // Write-once: never the output of another execution
	ExecutedAt time.Time `json:"executed_at"`
	Order      int64     `json:"order"` // Commit sequence number
}

// Snapshot is the complete MG+OG state, persisted as one unit.
//
// Nodes is the arena shared by both graphs, ordered by Seq. MG membership is
// MGRoot plus every child of an MGEdge; OGNodes lists OG membership.
type Snapshot struct {
	Version int                `json:"version"`
	MGRoot  string             `json:"mg_root"`
	OGRoot  string             `json:"og_root"`
	Nodes   []BlockNode        `json:"nodes"`
	MGEdges []RegistrationEdge `json:"mg_edges"`
	OGNodes []string           `json:"og_nodes"`
	OGEdges []ExecutionEdge    `json:"og_edges"`
}

// LastSeq returns the highest commit sequence number in the snapshot.
func (s *Snapshot) LastSeq() int64 {
	var last int64
	for _, n := range s.Nodes {
		if n.Seq > last {
			last = n.Seq
		}
	}
	for _, e := range s.OGEdges {
		if e.Order > last {
			last = e.Order
		}
	}
	return last
}

// TimeFormat is the ISO-8601 layout used for every persisted timestamp.
const TimeFormat = time.RFC3339Nano

// FormatTime renders t in UTC using TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses a timestamp written by FormatTime.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}
