// Package ir provides the foundational types shared by every FGDB package.
//
// This package contains block and graph record types, canonical JSON
// serialization, content-addressed identity, and the error taxonomy. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Block IDs are SHA-256 hex codes computed once at registration
//   - Identity derivation uses RFC 8785 canonical JSON, never encoding/json
//   - All JSON tags use snake_case (the system.json record is the exception)
//   - Ordering uses commit sequence numbers (seq), never wall-clock time
package ir
