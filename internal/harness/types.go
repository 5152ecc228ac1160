package harness

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"
	EventDelivery   = "delivery"
)

// TraceEvent is one entry of a scenario trace: a step's invocation, its
// completion, or a tick or event delivered to a session's handler.
type TraceEvent struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq"`
	Session string `json:"session"`

	// Op is the invoked operation (invocation) or the delivery kind,
	// "tick" or "event" (delivery).
	Op   string `json:"op,omitempty"`
	Args any    `json:"args,omitempty"`

	// OutputCase is "Success" or the error kind (completion).
	OutputCase string `json:"output_case,omitempty"`

	// Result is the completion value, or the delivered tick or event.
	Result any `json:"result,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds invocations, completions and deliveries in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expect and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace records a step's invocation.
func (r *Result) AddInvocationTrace(session, op string, args any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventInvocation,
		Seq:     seq,
		Session: session,
		Op:      op,
		Args:    args,
	})
}

// AddCompletionTrace records a step's outcome.
func (r *Result) AddCompletionTrace(session, outputCase string, result any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:       EventCompletion,
		Seq:        seq,
		Session:    session,
		OutputCase: outputCase,
		Result:     result,
	})
}

// AddDeliveryTrace records a tick or event handed to a session's handler.
func (r *Result) AddDeliveryTrace(session, kind string, payload any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventDelivery,
		Seq:     seq,
		Session: session,
		Op:      kind,
		Result:  payload,
	})
}
