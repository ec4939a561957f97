package engine

// State is the lifecycle position of one operation.
type State string

const (
	StateParsed    State = "parsed"
	StateResolved  State = "resolved"
	StateInvoked   State = "invoked"
	StateCommitted State = "committed"
	StateFailed    State = "failed"
)

