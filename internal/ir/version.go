package ir

// Version constants for the persisted snapshot and the engine.
const (
	// SnapshotVersion is the snapshot format version. Stores written with a
	// different version are rejected with ErrCodeIncompatibleSnapshotVersion.
	SnapshotVersion = 1

	// EngineVersion is the FGDB engine version.
	EngineVersion = "0.1.0"
)
