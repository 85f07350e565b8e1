package harness

// Outcome recorded for a step that succeeded. Failed steps record their
// error code.
const OutcomeOK = "ok"

// TraceEvent records one flow step and what the engine returned.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	Outcome string `json:"outcome"`

	// Chain and Status identify the chain the step acted on and its
	// status afterwards.
	Chain  string `json:"chain,omitempty"`
	Status string `json:"status,omitempty"`

	// Candidates are the ranked results of a find.
	Candidates []CandidateTrace `json:"candidates,omitempty"`

	// Valid is the validator verdict; Issues are its error codes.
	Valid  *bool    `json:"valid,omitempty"`
	Issues []string `json:"issues,omitempty"`

	// Attempt, Transfers and FailedStep describe an execution.
	Attempt    string `json:"attempt,omitempty"`
	Transfers  int    `json:"transfers,omitempty"`
	FailedStep string `json:"failed_step,omitempty"`

	// Expired lists chains moved to EXPIRED by a sweep.
	Expired []string `json:"expired,omitempty"`
}

// CandidateTrace is the stable summary of a chain candidate.
type CandidateTrace struct {
	Route    string            `json:"route"`
	Fairness string            `json:"fairness"`
	Cash     map[string]string `json:"cash"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every flow step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// record appends ev with the next sequence number.
func (r *Result) record(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
