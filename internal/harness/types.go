package harness

// StepEvent records the session state after one flow step.
type StepEvent struct {
	Do     string `json:"do"`
	Handle string `json:"handle,omitempty"`
	State  string `json:"state,omitempty"`
	Reason string `json:"reason,omitempty"`
	Frames int    `json:"frames"`
	Swept  int    `json:"swept,omitempty"`
	Error  string `json:"error,omitempty"` // operation error code
}

// AuditEvent is the hash-free view of an audit record used in traces.
type AuditEvent struct {
	Seq         int64  `json:"seq"`
	Identity    string `json:"identity"`
	Fingerprint string `json:"fingerprint"`
	Face        string `json:"face"`
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason"`
	Frames      int64  `json:"frames"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Steps holds one event per executed flow step (repeats included).
	Steps []StepEvent `json:"steps"`

	// Audit is the audit log after the flow.
	Audit []AuditEvent `json:"audit"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepEvent{},
		Audit:  []AuditEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a flow step event.
func (r *Result) AddStep(ev StepEvent) {
	r.Steps = append(r.Steps, ev)
}
