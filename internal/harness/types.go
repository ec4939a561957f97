package harness

// Trace event types.
const (
	EventRegister = "register"
	EventExecute  = "execute"
)

// TraceEvent records one registration or execution of a scenario.
type TraceEvent struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq,omitempty"` // Zero when nothing was committed

	// Registration
	Kind    string `json:"kind,omitempty"`
	Name    string `json:"name,omitempty"`
	ID      string `json:"id,omitempty"`
	Created bool   `json:"created,omitempty"`

	// Execution
	Expr     string            `json:"expr,omitempty"`
	RunID    string            `json:"run_id,omitempty"`
	Function string            `json:"function,omitempty"`
	Inputs   []string          `json:"inputs,omitempty"`
	Output   string            `json:"output,omitempty"`
	Files    map[string]string `json:"files,omitempty"`

	// Error is the error code of a failed step.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Stats holds the final graph counts, keyed like graph.Stats.
	Stats map[string]int `json:"stats"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Stats:  map[string]int{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
